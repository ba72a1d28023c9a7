package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"productcatalog/catalog"
)

type ErrorResponse struct {
	Message  *string          `json:"message,omitempty"`
	Product  *ProductResponse `json:"product,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// respondError 將流程錯誤轉換為 HTTP 回應
func (impl *ServerImpl) respondError(c *gin.Context, op string, outcome catalog.Outcome, err error) {
	var (
		validationErr *catalog.ValidationError
		notFoundErr   *catalog.NotFoundError
		capacityErr   *catalog.CapacityExceededError
		partialErr    *catalog.PartialFailureError
		storeErr      *catalog.StoreError
	)
	body := ErrorResponse{Message: lo.ToPtr(err.Error())}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &capacityErr):
		status = http.StatusConflict
	case errors.As(err, &partialErr):
		status = http.StatusMultiStatus
	case errors.As(err, &storeErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		body.Message = lo.ToPtr("Internal server error")
	}
	// 附上流程結束時商品的狀態，讓客戶端知道已經套用了哪些變更
	if outcome.Product != nil && status != http.StatusInternalServerError {
		body.Product = lo.ToPtr(newProductResponse(outcome.Product))
	}
	if len(outcome.Warnings) > 0 {
		body.Warnings = warningMessages(outcome.Warnings)
	}

	if status >= http.StatusInternalServerError {
		impl.logger.ErrorContext(c.Request.Context(), "Request failed", slog.String("op", op), slog.Int("status", status), slog.Any("error", err))
	} else {
		impl.logger.InfoContext(c.Request.Context(), "Request rejected", slog.String("op", op), slog.Int("status", status), slog.Any("error", err))
	}
	c.JSON(status, body)
}

func warningMessages(warnings []error) []string {
	return lo.Map(warnings, func(w error, _ int) string {
		return w.Error()
	})
}

func abortWithMessage(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Message: lo.ToPtr(message)})
}
