package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws"
	"github.com/imrishuroy/go-outfit-pipeline/internal/config"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
)

const localBody = `{"order_id":"local-order-1","idempotency_key":"checkout#local-key-1"}`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	l, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer l.Sync()

	ctx := context.Background()
	clients, err := aws.NewClients(ctx, aws.Settings{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		l.Fatal("failed to init aws clients", "error", err)
	}

	metrics := aws.NewMetricsRecorder(clients.CloudWatch, cfg.MetricsNamespace, l, map[string]string{"Service": "worker"})
	p := NewProcessor(orders.NewStore(clients.DynamoDB, cfg.AWS.OrdersTable), cfg.ReceiptBaseURL, metrics, l)

	// RUN_LOCAL=true processes a single simulated SQS record, LOCAL_SQS_BODY or a default.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = localBody
		}
		if err := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}}); err != nil {
			l.Fatal("local handler error", "error", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
