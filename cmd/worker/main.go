package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/aws"
	"github.com/Sung-star/storefront-checkout/internal/config"
	"github.com/Sung-star/storefront-checkout/internal/idempotency"
	"github.com/Sung-star/storefront-checkout/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		zlog.Fatal("failed to init aws clients", zap.Error(err))
	}

	p := NewProcessor(
		aws.NewMetricsClient(clients.CloudWatch, cfg.CloudWatchNamespace),
		idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		zlog,
	)

	// If RUN_LOCAL=true, process one event from LOCAL_SQS_BODY and exit.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"event":"checkout.order_placed","session_id":"local","order_id":"local-order-1","payment_method":"CASH","amount":200000}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: testBody}},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil {
			zlog.Fatal("local handler error", zap.Error(err))
		}
		out, _ := json.Marshal(resp)
		zlog.Info("local run finished", zap.ByteString("response", out))
		return
	}

	lambda.Start(p.Handle)
}
