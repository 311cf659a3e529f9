package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"

	"potluck/app"
)

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}
	// Lambda has no local disk worth keeping, so generations go to CloudWatch.
	if cfg.Generation.LogPath == "" {
		cfg.Generation.LogPath = "stdout"
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %s", err)
	}
	slog.Info("SETUP: Lambda handler ready", "store", cfg.Store.Backend, "provider", cfg.Model.Provider)

	adapter := chiadapter.NewV2(a.Router)
	lambda.Start(func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return adapter.ProxyWithContextV2(ctx, req)
	})
}
