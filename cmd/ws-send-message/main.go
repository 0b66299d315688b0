// Package main implements the WebSocket push Lambda. EventBridge routes
// map.generated and map.generation_failed events here; the handler fans the
// outcome out to every connection watching the affected page.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/infrastructure/config"
	"mindloom-backend/infrastructure/messaging/websocket"
)

var (
	notifier ports.Notifier
	logger   *zap.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.WebSocketEndpoint == "" {
		log.Fatal("WEBSOCKET_ENDPOINT is required")
	}

	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	apiClient := apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(cfg.WebSocketEndpoint)
	})
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	notifier = websocket.NewNotifier(apiClient, dynamoClient, cfg.ConnectionsTable, cfg.GSI2IndexName, logger)

	logger.Info("WebSocket send-message handler initialized")
}

// mapGeneratedDetail is the EventBridge detail for map.generated
type mapGeneratedDetail struct {
	UserID     string `json:"user_id"`
	PageKey    string `json:"page_key"`
	Shape      string `json:"shape"`
	Model      string `json:"model"`
	MapVersion int    `json:"map_version"`
}

// mapFailedDetail is the EventBridge detail for map.generation_failed
type mapFailedDetail struct {
	UserID  string `json:"user_id"`
	PageKey string `json:"page_key"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// handleEvent pushes one generation outcome to the page's listeners.
// Push is best-effort: the extension also polls on reconnect, so a failed
// fan-out is logged, not retried.
func handleEvent(ctx context.Context, event events.CloudWatchEvent) error {
	var (
		userID  string
		rawKey  string
		payload map[string]interface{}
	)

	switch event.DetailType {
	case "map.generated":
		var detail mapGeneratedDetail
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			logger.Error("Unreadable map.generated event", zap.String("eventID", event.ID), zap.Error(err))
			return nil
		}
		userID = detail.UserID
		rawKey = detail.PageKey
		payload = map[string]interface{}{
			"status":      "generated",
			"shape":       detail.Shape,
			"model":       detail.Model,
			"map_version": detail.MapVersion,
		}
	case "map.generation_failed":
		var detail mapFailedDetail
		if err := json.Unmarshal(event.Detail, &detail); err != nil {
			logger.Error("Unreadable map.generation_failed event", zap.String("eventID", event.ID), zap.Error(err))
			return nil
		}
		userID = detail.UserID
		rawKey = detail.PageKey
		payload = map[string]interface{}{
			"status": "failed",
			"code":   detail.Code,
			"reason": detail.Reason,
		}
	default:
		logger.Warn("Ignoring unexpected event type", zap.String("detailType", event.DetailType))
		return nil
	}

	if userID == "" || rawKey == "" {
		logger.Error("Event missing user or page key", zap.String("eventID", event.ID))
		return nil
	}

	pageKey, err := valueobjects.NewPageKeyFromString(rawKey)
	if err != nil {
		logger.Error("Invalid page key in event", zap.String("pageKey", rawKey), zap.Error(err))
		return nil
	}

	if err := notifier.NotifyMapUpdated(ctx, userID, pageKey, payload); err != nil {
		logger.Error("Failed to push map update",
			zap.String("pageKey", pageKey.String()),
			zap.Error(err),
		)
		return fmt.Errorf("notify failed for page %s: %w", pageKey.String(), err)
	}

	return nil
}

func main() {
	lambda.Start(handleEvent)
}
