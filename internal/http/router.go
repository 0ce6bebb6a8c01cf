package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SmartWakePrefix 设备接口前缀：/smartwake/api/v1/devices/{id}/{action}
const SmartWakePrefix = "/smartwake/api/v1/devices/"

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSmartWakeRoutes 注册智能唤醒设备接口
func (r *Router) RegisterSmartWakeRoutes(h *SmartWakeHandler) {
	r.HandleHandler(SmartWakePrefix, h)
}

// HealthCheck 依赖健康检查项（redis / mqtt 等）
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RegisterOpsRoutes 注册 /health 与 /metrics
func (r *Router) RegisterOpsRoutes(gatherer prometheus.Gatherer, checks ...HealthCheck) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				r.logger.Warn("Health check failed", zap.String("check", c.Name), zap.Error(err))
				status[c.Name] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[c.Name] = "ok"
		}
		writeJSON(w, code, Ok(status))
	})
	r.HandleHandler("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
