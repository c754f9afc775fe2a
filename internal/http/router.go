package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
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

// HandleHandler 支持 http.Handler 接口
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDeviceRoutes 设备上报
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	r.HandleHandler("/api/v1/device/readings/", h)
}

// RegisterCaseRoutes 救援人操作
func (r *Router) RegisterCaseRoutes(h *CaseHandler) {
	r.HandleHandler("/api/v1/cases", h)
	r.HandleHandler("/api/v1/cases/", h)
}

// RegisterMonitorRoutes 监控视图
func (r *Router) RegisterMonitorRoutes(h *MonitorHandler) {
	r.HandleHandler("/api/v1/dependents/", h)
}

// RegisterOpsRoutes 健康检查与指标
// check 为 nil 时只返回进程存活
func (r *Router) RegisterOpsRoutes(check func(req *http.Request) error) {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if check != nil {
			if err := check(req); err != nil {
				r.logger.Warn("Health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, Fail("unhealthy"))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	r.HandleHandler("/metrics", promhttp.Handler())
}
