package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/service"

	"go.uber.org/zap"
)

// StatusReader 监控视图查询
type StatusReader interface {
	GetStatus(ctx context.Context, dependentID string) (*service.DependentStatus, error)
}

// MonitorHandler GET /api/v1/dependents/{id}/latest
type MonitorHandler struct {
	monitor StatusReader
	logger  *zap.Logger
}

func NewMonitorHandler(monitor StatusReader, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		logger:  logger,
	}
}

func (h *MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/dependents/")
	dependentID, ok := strings.CutSuffix(rest, "/latest")
	if !ok || dependentID == "" || strings.Contains(dependentID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status, err := h.monitor.GetStatus(r.Context(), dependentID)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.Error("Failed to get dependent status",
				zap.String("dependent_id", dependentID),
				zap.Error(err),
			)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}
