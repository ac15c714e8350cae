// internal/service/coupon/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"flashmart/internal/pkg/lock"
	"flashmart/internal/service/coupon/application"
	"flashmart/internal/service/coupon/domain"
)

// CouponHandler 封装了 coupon 服务的 HTTP 处理器。
type CouponHandler struct {
	service *application.CouponService
}

// NewCouponHandler 创建 HTTP 处理器实例。
func NewCouponHandler(service *application.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CouponHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /coupons/initialize", h.handleInitialize)
	mux.HandleFunc("POST /coupons/issue", h.handleIssue)
	mux.HandleFunc("POST /coupons/enqueue", h.handleEnqueue)
	mux.HandleFunc("GET /coupons/status", h.handleStatus)
	mux.HandleFunc("GET /coupons/issued", h.handleHasIssued)
	mux.HandleFunc("POST /coupons/topup", h.handleTopUp)
	mux.HandleFunc("POST /coupons/revoke", h.handleRevoke)
	mux.HandleFunc("DELETE /coupons", h.handleTeardown)
}

func (h *CouponHandler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.InitializeCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Quantity < 0 {
		http.Error(w, "code is required and quantity must be >= 0", http.StatusBadRequest)
		return
	}

	if err := h.service.InitializeCoupon(ctx, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *CouponHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Code == "" {
		http.Error(w, "user_id and code are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.TryIssue(ctx, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// OUT_OF_STOCK 不是异常而是正常的否定结果，用 409 提示客户端去排队
	statusCode := http.StatusOK
	if resp.Status == application.StatusOutOfStock {
		statusCode = http.StatusConflict
	}
	writeJSON(w, statusCode, resp)
}

func (h *CouponHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Code == "" {
		http.Error(w, "user_id and code are required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Enqueue(ctx, req.UserID, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetStatus(ctx, code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleHasIssued(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("user_id")
	if code == "" || userID == "" {
		http.Error(w, "code and user_id are required", http.StatusBadRequest)
		return
	}

	issued, err := h.service.HasIssued(ctx, code, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"issued": issued})
}

func (h *CouponHandler) handleTopUp(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		Code  string `json:"code"`
		Delta int64  `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Delta <= 0 {
		http.Error(w, "code is required and delta must be > 0", http.StatusBadRequest)
		return
	}

	if err := h.service.TopUpStock(ctx, req.Code, req.Delta); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *CouponHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		Code   string `json:"code"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.UserID == "" {
		http.Error(w, "code and user_id are required", http.StatusBadRequest)
		return
	}

	if err := h.service.RevokeIssuance(ctx, req.Code, req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *CouponHandler) handleTeardown(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Teardown(ctx, code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// writeDomainError 根据错误类型映射 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrCouponNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrCouponNotActive),
		errors.Is(err, domain.ErrNotEligible):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyInitialized):
		statusCode = http.StatusConflict
	case errors.Is(err, lock.ErrLockAcquisitionFailed):
		// 竞争过热属于瞬时状况，提示客户端稍后重试
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}
