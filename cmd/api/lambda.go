package main

import (
	"context"
	"maps"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
)

// runLambda serves API Gateway HTTP API (payload v2) events until the
// runtime stops the process.
func runLambda(a *app) {
	lambda.Start(newLambdaHandler(a))
}

// lambdaHandler adapts API Gateway events to the chi router.
type lambdaHandler struct {
	app     *app
	adapter *chiadapter.ChiLambdaV2
}

func newLambdaHandler(a *app) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	h := &lambdaHandler{app: a, adapter: chiadapter.NewV2(a.server.Router())}
	return h.Handle
}

// Handle serves one event and publishes the metrics it produced before the
// sandbox can be frozen.
func (h *lambdaHandler) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	defer h.app.Flush(context.WithoutCancel(ctx))
	return h.adapter.ProxyWithContextV2(ctx, withRequestID(event))
}

// withRequestID forwards the API Gateway request id as X-Request-Id unless
// the caller already sent one, so logs correlate with the gateway's.
func withRequestID(event events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPRequest {
	id := event.RequestContext.RequestID
	if id == "" {
		return event
	}
	for k := range event.Headers {
		if http.CanonicalHeaderKey(k) == "X-Request-Id" {
			return event
		}
	}
	headers := make(map[string]string, len(event.Headers)+1)
	maps.Copy(headers, event.Headers)
	headers["x-request-id"] = id
	event.Headers = headers
	return event
}
