package v1

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/likewise/server/service/recommend"
)

// Recommender builds recommendation results.
type Recommender interface {
	BuildRecommendations(ctx context.Context, req *recommend.RecommendationRequest) *recommend.RecommendationResult
}

// APIV1Service serves the v1 HTTP API.
type APIV1Service struct {
	Recommender Recommender
}

func NewAPIV1Service(recommender Recommender) *APIV1Service {
	return &APIV1Service{
		Recommender: recommender,
	}
}

// RegisterGateway registers the v1 routes on the echo server.
func (s *APIV1Service) RegisterGateway(_ context.Context, echoServer *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	group := echoServer.Group("/api/v1", middlewares...)
	group.GET("/recommendations", s.GetRecommendations)
}
