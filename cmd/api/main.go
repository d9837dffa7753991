package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws"
	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/checkout"
	"github.com/imrishuroy/go-outfit-pipeline/internal/config"
	"github.com/imrishuroy/go-outfit-pipeline/internal/explain"
	"github.com/imrishuroy/go-outfit-pipeline/internal/handlers"
	"github.com/imrishuroy/go-outfit-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/normalize"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
	"github.com/imrishuroy/go-outfit-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-outfit-pipeline/internal/ranking"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// newExplainer returns nil when no API key is configured; the ranker then
// uses template explanations.
func newExplainer(ctx context.Context, cfg config.Config, l *logger.Logger) ranking.Explainer {
	if !cfg.OpenAI.Enabled() {
		l.Info("openai disabled, using template explanations")
		return nil
	}
	var gen explain.Generator = explain.NewOpenAI(explain.OpenAIConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.Model,
		MaxRetries: cfg.OpenAI.MaxRetries,
	})
	if cfg.Redis.Enabled() {
		rdb, err := explain.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			l.Warn("redis unavailable, explanations are not cached", "error", err)
			return gen
		}
		gen = explain.NewCached(gen, rdb, cfg.Redis.TTL, l)
	}
	return gen
}

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

	cat, err := catalog.Demo()
	if err != nil {
		l.Fatal("failed to load catalog", "error", err)
	}

	rankerOpts := []ranking.Option{ranking.WithExplainTimeout(cfg.ExplainTimeout), ranking.WithLogger(l)}
	if e := newExplainer(ctx, cfg, l); e != nil {
		rankerOpts = append(rankerOpts, ranking.WithExplainer(e))
	}
	metrics := aws.NewMetricsRecorder(clients.CloudWatch, cfg.MetricsNamespace, l, map[string]string{"Service": "api"})
	p := pipeline.New(cat,
		pipeline.WithRanker(ranking.New(rankerOpts...)),
		pipeline.WithRecorder(metrics),
		pipeline.WithLogger(l),
	)

	carts := cart.NewStore(clients.DynamoDB, cfg.AWS.CartsTable, cat)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.AWS.OrdersTable)
	idempStore := idempotency.NewStore(clients.DynamoDB, cfg.AWS.IdempotencyTable, cfg.IdempotencyTTL)
	publisher := aws.NewPublisher(clients.SQS, cfg.AWS.QueueURL)

	r := setupRouter(handlers.HandlerConfig{
		Pipeline:    p,
		Normalizer:  normalize.New(),
		Carts:       carts,
		Orders:      orderStore,
		Idempotency: idempStore,
		Checkout:    checkout.NewService(carts, cat, orderStore, idempStore, publisher, l),
		Log:         l,
	})

	if cfg.RunLocal {
		l.Info("running local server", "addr", cfg.Address, "items", cat.Len())
		if err := r.Run(cfg.Address); err != nil {
			l.Fatal("failed to run local server", "error", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
