// Package main implements the WebSocket $connect/$disconnect Lambda handler.
// The extension opens one connection per viewed page; the handler validates
// the caller's JWT and registers the connection against the page key so map
// updates can be fanned out later.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/infrastructure/config"
	"mindloom-backend/pkg/auth"
)

// connectionTTL bounds how long a registration outlives its connection.
// API Gateway idle-closes sockets long before this; the TTL only cleans up
// rows whose $disconnect was lost.
const connectionTTL = 24 * time.Hour

var (
	dynamoClient *dynamodb.Client
	validator    *auth.JWTValidator
	cfg          *config.Config
	logger       *zap.Logger
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}
	dynamoClient = dynamodb.NewFromConfig(awsCfg)

	validator, err = auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      []string{"mindloom-extension"},
	})
	if err != nil {
		logger.Fatal("Failed to create JWT validator", zap.Error(err))
	}

	logger.Info("WebSocket connect handler initialized")
}

// storeConnection registers a connection in the connections table. GSI2PK
// carries the page key so the notifier can fan out by page.
func storeConnection(ctx context.Context, connectionID, userID string, pageKey valueobjects.PageKey) error {
	now := time.Now()
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: fmt.Sprintf("CONNECTION#%s", connectionID)},
		"SK":           &types.AttributeValueMemberS{Value: "METADATA"},
		"ConnectionID": &types.AttributeValueMemberS{Value: connectionID},
		"UserID":       &types.AttributeValueMemberS{Value: userID},
		"ConnectedAt":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"TTL":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(connectionTTL).Unix())},
	}
	if !pageKey.IsZero() {
		item["PageKey"] = &types.AttributeValueMemberS{Value: pageKey.String()}
		item["GSI2PK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("PAGE#%s", pageKey.String())}
		item["GSI2SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("CONNECTION#%s", connectionID)}
	}

	_, err := dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(cfg.ConnectionsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}
	return nil
}

// removeConnection drops a connection registration on $disconnect
func removeConnection(ctx context.Context, connectionID string) error {
	_, err := dynamoClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(cfg.ConnectionsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("CONNECTION#%s", connectionID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

func handleConnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID

	// Browsers cannot set headers on the WebSocket handshake, so the
	// extension passes the JWT as a query parameter
	token := request.QueryStringParameters["token"]
	if token == "" {
		token = request.Headers["Authorization"]
	}

	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket auth failed",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusUnauthorized,
			Body:       `{"error":"unauthorized"}`,
		}, nil
	}

	// The page URL the extension is watching; canonicalized the same way
	// captures are, so the notifier's page index lines up
	var pageKey valueobjects.PageKey
	if pageURL := request.QueryStringParameters["url"]; pageURL != "" {
		pageKey, err = valueobjects.NewPageKey(pageURL)
		if err != nil {
			logger.Warn("Ignoring invalid page URL on connect",
				zap.String("connectionID", connectionID),
				zap.Error(err),
			)
			pageKey = valueobjects.PageKey{}
		}
	}

	if err := storeConnection(ctx, connectionID, claims.UserID, pageKey); err != nil {
		logger.Error("Failed to store connection",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"error":"internal server error"}`,
		}, nil
	}

	logger.Info("WebSocket connection established",
		zap.String("connectionID", connectionID),
		zap.String("userID", claims.UserID),
		zap.String("pageKey", pageKey.String()),
	)

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func handleDisconnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID

	if err := removeConnection(ctx, connectionID); err != nil {
		// The TTL will clean the row up eventually
		logger.Warn("Failed to remove connection on disconnect",
			zap.String("connectionID", connectionID),
			zap.Error(err),
		)
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// handler dispatches on the WebSocket route key
func handler(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch request.RequestContext.RouteKey {
	case "$connect":
		return handleConnect(ctx, request)
	case "$disconnect":
		return handleDisconnect(ctx, request)
	default:
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Body:       `{"error":"unsupported route"}`,
		}, nil
	}
}

func main() {
	lambda.Start(handler)
}
