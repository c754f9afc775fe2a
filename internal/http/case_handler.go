package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// CaseOperator 紧急案例操作
type CaseOperator interface {
	Accept(ctx context.Context, caseID, responderID string) (*models.EmergencyCase, error)
	Track(ctx context.Context, caseID string, loc models.GeoPoint) (*models.EmergencyCase, error)
	Close(ctx context.Context, caseID string) (*models.EmergencyCase, error)
	Get(ctx context.Context, caseID string) (*models.EmergencyCase, error)
	ListActive(ctx context.Context) ([]*models.EmergencyCase, error)
}

// CaseHandler 救援人操作 Handler
type CaseHandler struct {
	cases  CaseOperator
	logger *zap.Logger
}

// NewCaseHandler 创建案例 Handler
func NewCaseHandler(cases CaseOperator, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{
		cases:  cases,
		logger: logger,
	}
}

// ServeHTTP 路由分发
func (h *CaseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "/api/v1/cases" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListActive(w, r)
		return
	}

	rest := strings.TrimPrefix(path, "/api/v1/cases/")
	caseID, action, _ := strings.Cut(rest, "/")
	if caseID == "" || strings.Contains(action, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.Get(w, r, caseID)
	case action == "accept" && r.Method == http.MethodPost:
		h.Accept(w, r, caseID)
	case action == "location" && r.Method == http.MethodPost:
		h.Track(w, r, caseID)
	case action == "close" && r.Method == http.MethodPost:
		h.Close(w, r, caseID)
	case action == "" || action == "accept" || action == "location" || action == "close":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListActive 未结案案例列表
func (h *CaseHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	cases, err := h.cases.ListActive(r.Context())
	if err != nil {
		h.logger.Error("Failed to list active cases", zap.Error(err))
		writeError(w, err)
		return
	}
	if cases == nil {
		cases = []*models.EmergencyCase{}
	}
	writeJSON(w, http.StatusOK, Ok(cases))
}

// Get 查询单个案例
func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request, caseID string) {
	ec, err := h.cases.Get(r.Context(), caseID)
	h.respond(w, "get", caseID, ec, err)
}

// Accept 接单，body: {"responder_id": "..."}
func (h *CaseHandler) Accept(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		ResponderID string `json:"responder_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, err)
		return
	}
	ec, err := h.cases.Accept(r.Context(), caseID, strings.TrimSpace(body.ResponderID))
	h.respond(w, "accept", caseID, ec, err)
}

// Track 救援人位置，body: {"lat": 13.7, "lng": 100.5}
func (h *CaseHandler) Track(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Lat == nil || body.Lng == nil {
		writeJSON(w, http.StatusBadRequest, Fail("lat and lng are required"))
		return
	}
	ec, err := h.cases.Track(r.Context(), caseID, models.GeoPoint{Lat: *body.Lat, Lng: *body.Lng})
	h.respond(w, "track", caseID, ec, err)
}

// Close 结案
func (h *CaseHandler) Close(w http.ResponseWriter, r *http.Request, caseID string) {
	ec, err := h.cases.Close(r.Context(), caseID)
	h.respond(w, "close", caseID, ec, err)
}

func (h *CaseHandler) respond(w http.ResponseWriter, op, caseID string, ec *models.EmergencyCase, err error) {
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.Error("Emergency case operation failed",
				zap.String("op", op),
				zap.String("case_id", caseID),
				zap.Error(err),
			)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ec))
}
