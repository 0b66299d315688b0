package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// messageTypeMapUpdated is the frame type the extension listens for
const messageTypeMapUpdated = "MAP_UPDATED"

// Notifier pushes map updates over API Gateway WebSocket connections.
// Connections register themselves against a page key when the extension
// opens a page; the notifier fans a MAP_UPDATED frame out to all of them.
type Notifier struct {
	api          *apigatewaymanagementapi.Client
	db           *dynamodb.Client
	tableName    string
	pageIndex    string
	logger       *zap.Logger
}

// connectionItem is one WebSocket connection registered in the connections table
type connectionItem struct {
	PK           string `dynamodbav:"PK"` // CONNECTION#<connection_id>
	SK           string `dynamodbav:"SK"` // METADATA
	ConnectionID string `dynamodbav:"ConnectionID"`
	UserID       string `dynamodbav:"UserID"`
	PageKey      string `dynamodbav:"PageKey,omitempty"`
}

// NewNotifier creates a new WebSocket notifier. pageIndex names the GSI
// keyed by GSI2PK = PAGE#<pageKey>.
func NewNotifier(
	api *apigatewaymanagementapi.Client,
	db *dynamodb.Client,
	tableName string,
	pageIndex string,
	logger *zap.Logger,
) ports.Notifier {
	return &Notifier{
		api:       api,
		db:        db,
		tableName: tableName,
		pageIndex: pageIndex,
		logger:    logger,
	}
}

// NotifyMapUpdated tells every listener on the page that its map changed.
// Connections that have gone away are pruned as a side effect; individual
// send failures never fail the whole fan-out.
func (n *Notifier) NotifyMapUpdated(ctx context.Context, userID string, pageKey valueobjects.PageKey, payload map[string]interface{}) error {
	connections, err := n.connectionsForPage(ctx, userID, pageKey)
	if err != nil {
		return fmt.Errorf("failed to list page connections: %w", err)
	}
	if len(connections) == 0 {
		return nil
	}

	frame := map[string]interface{}{
		"type":     messageTypeMapUpdated,
		"page_key": pageKey.String(),
	}
	for key, value := range payload {
		frame[key] = value
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	sent := 0
	for _, conn := range connections {
		_, err := n.api.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(conn.ConnectionID),
			Data:         data,
		})
		if err != nil {
			var gone *apigwtypes.GoneException
			if errors.As(err, &gone) {
				n.pruneConnection(ctx, conn.ConnectionID)
				continue
			}
			n.logger.Warn("Failed to push map update",
				zap.String("connectionID", conn.ConnectionID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	n.logger.Debug("Map update pushed",
		zap.String("pageKey", pageKey.String()),
		zap.Int("connections", len(connections)),
		zap.Int("delivered", sent),
	)
	return nil
}

// connectionsForPage lists the user's live connections subscribed to a page
func (n *Notifier) connectionsForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) ([]connectionItem, error) {
	result, err := n.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(n.tableName),
		IndexName:              aws.String(n.pageIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		FilterExpression:       aws.String("UserID = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: fmt.Sprintf("PAGE#%s", pageKey.String())},
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}

	connections := make([]connectionItem, 0, len(result.Items))
	for _, raw := range result.Items {
		var item connectionItem
		if err := unmarshalConnection(raw, &item); err != nil {
			n.logger.Warn("Skipping unreadable connection item", zap.Error(err))
			continue
		}
		connections = append(connections, item)
	}
	return connections, nil
}

func unmarshalConnection(raw map[string]types.AttributeValue, item *connectionItem) error {
	get := func(key string) string {
		if v, ok := raw[key].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	item.PK = get("PK")
	item.SK = get("SK")
	item.ConnectionID = get("ConnectionID")
	item.UserID = get("UserID")
	item.PageKey = get("PageKey")
	if item.ConnectionID == "" {
		return fmt.Errorf("connection item missing ConnectionID")
	}
	return nil
}

// pruneConnection removes a connection the gateway reports as gone
func (n *Notifier) pruneConnection(ctx context.Context, connectionID string) {
	_, err := n.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(n.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CONNECTION#%s", connectionID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		n.logger.Warn("Failed to prune stale connection",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug("Stale connection pruned",
		zap.String("connectionID", connectionID),
	)
}
