package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/service"

	"go.uber.org/zap"
)

// Ingester 上报处理
type Ingester interface {
	Ingest(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (*service.IngestResult, error)
}

// DeviceHandler 设备上报 Handler
// POST /api/v1/device/readings/{kind}
type DeviceHandler struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewDeviceHandler 创建设备上报 Handler
func NewDeviceHandler(ingester Ingester, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		ingester: ingester,
		logger:   logger,
	}
}

// ingestResponse 只表达是否接受写入，不包含通知结果
type ingestResponse struct {
	Accepted  bool   `json:"accepted"`
	ReadingID string `json:"reading_id,omitempty"`
	CaseID    string `json:"case_id,omitempty"`
}

func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/device/readings/")
	kind, ok := models.ParseReadingKind(raw)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("unknown reading kind: "+raw))
		return
	}

	var payload models.DevicePayload
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.ingester.Ingest(r.Context(), payload.DependentID, kind, &payload)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.Error("Failed to ingest reading",
				zap.String("dependent_id", payload.DependentID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
		writeError(w, err)
		return
	}

	resp := ingestResponse{Accepted: true}
	if result.Reading != nil {
		resp.ReadingID = result.Reading.ReadingID
	}
	if result.Case != nil {
		resp.CaseID = result.Case.CaseID
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
