// Package main implements the map generation Lambda. EventBridge routes
// map.regeneration_requested events here; the handler rebuilds the keyword
// groups and regenerates the mind map for the affected page.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"mindloom-backend/domain/core/valueobjects"
	pkgerrors "mindloom-backend/pkg/errors"

	"mindloom-backend/infrastructure/config"
	"mindloom-backend/infrastructure/di"
)

// container is initialized once per execution environment
var container *di.Container

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependency container: %v", err)
	}

	container.Logger.Info("Generate-map handler initialized")
}

// regenerationDetail is the EventBridge detail payload for
// map.regeneration_requested events
type regenerationDetail struct {
	UserID  string `json:"user_id"`
	PageKey string `json:"page_key"`
	PageURL string `json:"page_url"`
	Trigger string `json:"trigger"`
}

// handleEvent runs the regeneration pipeline for one requested page.
// A concurrent regeneration of the same page is not an error: the lease
// holder will pick up the newest fragments, so the duplicate request is
// dropped rather than retried.
func handleEvent(ctx context.Context, event awsevents.CloudWatchEvent) error {
	logger := container.Logger

	// The runtime freezes the environment between invocations, so buffered
	// metrics must go out before the handler returns
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Metrics.Flush(flushCtx); err != nil {
			logger.Warn("Metric flush failed", zap.Error(err))
		}
	}()

	var detail regenerationDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		logger.Error("Unreadable regeneration event",
			zap.String("eventID", event.ID),
			zap.Error(err),
		)
		// Malformed events would fail forever; drop them
		return nil
	}

	if detail.UserID == "" || detail.PageKey == "" {
		logger.Error("Regeneration event missing user or page key",
			zap.String("eventID", event.ID),
		)
		return nil
	}

	pageKey, err := valueobjects.NewPageKeyFromString(detail.PageKey)
	if err != nil {
		logger.Error("Invalid page key in regeneration event",
			zap.String("pageKey", detail.PageKey),
			zap.Error(err),
		)
		return nil
	}

	trigger := detail.Trigger
	if trigger == "" {
		trigger = "manual"
	}

	logger.Info("Regenerating map",
		zap.String("userID", detail.UserID),
		zap.String("pageKey", pageKey.String()),
		zap.String("trigger", trigger),
	)

	err = container.Tracer.Trace(ctx, "regenerate_map", func(ctx context.Context) error {
		container.Tracer.Annotate(ctx, "page_key", pageKey.String())
		return container.RegenerationSaga.Run(ctx, detail.UserID, pageKey, detail.PageURL, trigger)
	})
	if err != nil {
		if errors.Is(err, pkgerrors.ErrGenerationInProgress) {
			logger.Info("Regeneration already in progress, skipping",
				zap.String("pageKey", pageKey.String()),
			)
			return nil
		}
		return fmt.Errorf("regeneration failed for page %s: %w", pageKey.String(), err)
	}

	return nil
}

func main() {
	lambda.Start(handleEvent)
}
