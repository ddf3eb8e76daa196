package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/bootstrap"
	"knowledge-hub/internal/shared/config"
	"knowledge-hub/internal/shared/telemetry"
)

const requestIDHeader = "x-request-id"

var (
	proxyMu   sync.Mutex
	ginLambda *ginadapter.GinLambdaV2

	// buildRouter is swapped in tests.
	buildRouter = func() (*gin.Engine, error) {
		cfg := config.Load()
		telemetry.Init("knowledge-hub-lambda", cfg.LogLevel)
		app, err := bootstrap.Build(cfg)
		if err != nil {
			return nil, err
		}
		telemetry.Info("lambda.app_built", map[string]any{
			"env":          cfg.Env,
			"object_store": cfg.ObjectStoreType,
			"memory_store": cfg.MemoryStore,
			"migrations":   cfg.RunMigrations,
		})
		return app.Router, nil
	}
)

// proxy builds the router on first use. A failed build is retried by the
// next invocation instead of pinning the container to an error.
func proxy() (*ginadapter.GinLambdaV2, error) {
	proxyMu.Lock()
	defer proxyMu.Unlock()
	if ginLambda != nil {
		return ginLambda, nil
	}
	started := time.Now()
	router, err := buildRouter()
	if err != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	ginLambda = ginadapter.NewV2(router)
	telemetry.Info("lambda.cold_start", map[string]any{"duration_ms": time.Since(started).Milliseconds()})
	return ginLambda, nil
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	adapter, err := proxy()
	if err != nil {
		return bootstrapFailure(), nil
	}
	return adapter.ProxyWithContext(ctx, withRequestID(req))
}

// withRequestID carries the API Gateway request id into the app's request id
// unless the caller sent one.
func withRequestID(req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPRequest {
	for name, value := range req.Headers {
		if strings.EqualFold(name, requestIDHeader) && strings.TrimSpace(value) != "" {
			return req
		}
	}
	if req.RequestContext.RequestID == "" {
		return req
	}
	headers := make(map[string]string, len(req.Headers)+1)
	for name, value := range req.Headers {
		headers[name] = value
	}
	headers[requestIDHeader] = req.RequestContext.RequestID
	req.Headers = headers
	return req
}

func bootstrapFailure() events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    "bootstrap_failed",
			"message": "service unavailable",
		},
	})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

func main() {
	lambda.Start(handler)
}
