package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/aws"
	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/cart"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
	"github.com/Sung-star/storefront-checkout/internal/config"
	checkoutevents "github.com/Sung-star/storefront-checkout/internal/events"
	"github.com/Sung-star/storefront-checkout/internal/handlers"
	"github.com/Sung-star/storefront-checkout/internal/idempotency"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/orders"
	"github.com/Sung-star/storefront-checkout/internal/payment"
	"github.com/Sung-star/storefront-checkout/internal/session"
	"github.com/Sung-star/storefront-checkout/internal/storage"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(cfg.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// buildHandlerConfig wires every service for cfg. AWS clients are only
// created when the storage driver or the events queue needs them.
func buildHandlerConfig(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (handlers.HandlerConfig, error) {
	var clients *aws.AWSClients
	if cfg.StorageDriver == config.DriverDynamoDB || cfg.EventsQueueURL != "" {
		var err error
		if clients, err = aws.NewAWSClients(ctx); err != nil {
			return handlers.HandlerConfig{}, fmt.Errorf("init aws clients: %w", err)
		}
	}

	// reconciliation records share the session store's backend; the memory
	// driver relies on in-process collapsing only
	var kv storage.KV
	var records payment.RecordStore
	switch cfg.StorageDriver {
	case config.DriverDynamoDB:
		kv = storage.NewDynamoKV(clients.DynamoDB, cfg.StorageTable, cfg.SessionTTL)
		records = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	case config.DriverRedis:
		rdb, err := storage.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return handlers.HandlerConfig{}, err
		}
		kv = storage.NewRedisKV(rdb, cfg.SessionTTL)
		records = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	default:
		kv = storage.NewMemoryKV()
	}

	var publisher checkoutevents.Publisher = checkoutevents.Nop{}
	if cfg.EventsQueueURL != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
	}

	api := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, zlog)
	sessions := session.NewManager(kv, api, session.NewTokenParser(cfg.JWTSecret), zlog)
	carts := cart.NewService(cart.NewPersistedStore(kv, zlog))
	placer := orders.NewPlacer(api, publisher, cfg.OrderPayloadVersion, cfg.AssetBaseURL, zlog)
	co := checkout.NewService(carts, checkout.NewDraftStore(kv, zlog), placer, api, zlog)
	reconciler := payment.NewReconciler(api, carts, co, records, publisher, zlog)

	return handlers.HandlerConfig{
		Sessions:       sessions,
		Carts:          carts,
		Checkout:       co,
		Products:       api,
		Reconciler:     reconciler,
		Log:            zlog,
		SessionTTL:     cfg.SessionTTL,
		SecureCookies:  cfg.IsProduction(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, nil
}

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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	hcfg, err := buildHandlerConfig(context.Background(), cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to wire services", zap.Error(err))
	}

	r := setupRouter(hcfg)

	// RUN_LOCAL=true serves plain HTTP for development
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		zlog.Info("running local server", zap.String("addr", addr), zap.String("storage", cfg.StorageDriver))
		if err := r.Run(addr); err != nil {
			zlog.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
