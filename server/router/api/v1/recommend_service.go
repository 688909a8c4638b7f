package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/likewise/server/internal/errors"
	"github.com/hrygo/likewise/server/service/recommend"
	"github.com/hrygo/likewise/store"
)

// GetRecommendations returns items similar to a query title, or a random
// filtered sample.
// GET /api/v1/recommendations?query=&mode=&type=&yearMin=&yearMax=&popMin=&limit=&locale=
func (s *APIV1Service) GetRecommendations(c echo.Context) error {
	req, err := parseRecommendationRequest(c)
	if err != nil {
		slog.Debug("Invalid recommendation request", "error", err)
		return c.JSON(http.StatusBadRequest, err)
	}
	result := s.Recommender.BuildRecommendations(c.Request().Context(), req)
	return c.JSON(http.StatusOK, result)
}

func parseRecommendationRequest(c echo.Context) (*recommend.RecommendationRequest, *apierrors.APIError) {
	req := &recommend.RecommendationRequest{
		Query:  strings.TrimSpace(c.QueryParam("query")),
		Locale: strings.TrimSpace(c.QueryParam("locale")),
	}
	if req.Query == "" {
		req.Query = strings.TrimSpace(c.QueryParam("q"))
	}

	switch mode := recommend.Mode(strings.ToLower(c.QueryParam("mode"))); mode {
	case "", recommend.ModeSearch, recommend.ModeRandom:
		req.Mode = mode
	default:
		return nil, apierrors.InvalidArgumentf("mode must be %q or %q", recommend.ModeSearch, recommend.ModeRandom).
			WithContext("param", "mode")
	}

	itemType, err := store.ParseItemType(c.QueryParam("type"))
	if err != nil {
		return nil, apierrors.InvalidArgument(err.Error()).WithContext("param", "type")
	}
	req.Type = itemType

	if req.YearMin, err = optionalInt(c, "yearMin"); err != nil {
		return nil, apierrors.InvalidArgument("yearMin must be an integer").WithContext("param", "yearMin")
	}
	if req.YearMax, err = optionalInt(c, "yearMax"); err != nil {
		return nil, apierrors.InvalidArgument("yearMax must be an integer").WithContext("param", "yearMax")
	}
	if req.YearMin != nil && req.YearMax != nil && *req.YearMin > *req.YearMax {
		return nil, apierrors.InvalidArgument("yearMin must not exceed yearMax").WithContext("param", "yearMin")
	}

	if raw := c.QueryParam("popMin"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			return nil, apierrors.InvalidArgument("popMin must be a number between 0 and 100").WithContext("param", "popMin")
		}
		req.PopMin = &v
	}

	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > recommend.MaxLimit {
			return nil, apierrors.InvalidArgumentf("limit must be an integer between 1 and %d", recommend.MaxLimit).
				WithContext("param", "limit")
		}
		req.Limit = v
	}
	return req, nil
}

func optionalInt(c echo.Context, name string) (*int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
