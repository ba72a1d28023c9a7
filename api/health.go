package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// HealthCheck 回傳 nil 代表依賴元件可用
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GetHealth 同時檢查所有依賴元件
// (GET /health)
func (impl *ServerImpl) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(impl.healthChecks))
	errs := make([]error, len(impl.healthChecks))
	names := make([]string, 0, len(impl.healthChecks))
	checks := make([]HealthCheck, 0, len(impl.healthChecks))
	for name, check := range impl.healthChecks {
		names = append(names, name)
		checks = append(checks, check)
	}

	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			errs[i] = checks[i](ctx)
			return nil
		})
	}
	_ = g.Wait()

	status := http.StatusOK
	resp := HealthResponse{Status: "ok", Checks: results}
	for i, name := range names {
		if errs[i] != nil {
			results[name] = errs[i].Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, resp)
}

// GetMetrics 輸出 prometheus 指標
// (GET /metrics)
func (impl *ServerImpl) GetMetrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(impl.gatherer, promhttp.HandlerOpts{}))
}
