// internal/service/ranking/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"flashmart/internal/service/cache"
	"flashmart/internal/service/ranking/application"
	"flashmart/internal/service/ranking/domain"
)

const (
	topNCacheName = "ranking_top"
	topNCacheTTL  = 30 * time.Second
	defaultLimit  = 10
	maxLimit      = 100
)

// RankingHandler 封装榜单的读端点。
// 榜单是典型的热点读路径，TopN 查询通过缓存守卫落到 Redis sorted set。
type RankingHandler struct {
	service *application.RankingService
	guard   *cache.Guard
}

// NewRankingHandler 创建榜单 HTTP 处理器。
func NewRankingHandler(service *application.RankingService, guard *cache.Guard) *RankingHandler {
	return &RankingHandler{service: service, guard: guard}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *RankingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /rankings/top", h.handleTopN)
	mux.HandleFunc("GET /rankings/rank", h.handleRankOf)
}

func (h *RankingHandler) handleTopN(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	window, err := domain.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := int64(defaultLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.ParseInt(v, 10, 64)
		if err != nil || limit <= 0 || limit > maxLimit {
			http.Error(w, "limit must be in [1, 100]", http.StatusBadRequest)
			return
		}
	}

	cacheKey := string(window) + ":" + strconv.FormatInt(limit, 10)
	payload, err := h.guard.GetOrLoad(ctx, topNCacheName, cacheKey, topNCacheTTL, func(ctx context.Context) (string, error) {
		scores, err := h.service.TopN(ctx, window, limit)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(scores)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		http.Error(w, errors.Wrap(err, "failed to load ranking").Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(payload))
}

func (h *RankingHandler) handleRankOf(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	window, err := domain.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}

	rank, ok, err := h.service.RankOf(ctx, window, productID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"product_id": productID,
		"ranked":     ok,
		"rank":       rank,
	})
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}
