package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wisefido-smartwake/internal/auth"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/repository"
	"wisefido-smartwake/internal/scheduler"
	"wisefido-smartwake/internal/service"

	"go.uber.org/zap"
)

// SmartWakeService handler 依赖的服务接口（由 service.SmartWakeService 实现）
type SmartWakeService interface {
	Arm(ctx context.Context, tenantID, deviceID string, settings *models.AlarmSettings) (scheduler.Status, error)
	Activate(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error)
	Cancel(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error)
	Reset(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error)
	Ingest(ctx context.Context, tenantID, deviceID string, sample models.PhaseSample) error
	Status(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error)
	Records(ctx context.Context, tenantID, deviceID string, limit int) ([]*models.AlarmRecord, error)
}

// SmartWakeHandler 智能唤醒设备接口
type SmartWakeHandler struct {
	svc      SmartWakeService
	defaults repository.SettingsDefaults
	logger   *zap.Logger
}

// NewSmartWakeHandler 创建 SmartWakeHandler
func NewSmartWakeHandler(svc SmartWakeService, defaults repository.SettingsDefaults, logger *zap.Logger) *SmartWakeHandler {
	return &SmartWakeHandler{svc: svc, defaults: defaults, logger: logger}
}

// ServeHTTP 路由：
//   - POST /smartwake/api/v1/devices/:id/arm
//   - POST /smartwake/api/v1/devices/:id/activate
//   - POST /smartwake/api/v1/devices/:id/cancel
//   - POST /smartwake/api/v1/devices/:id/reset
//   - POST /smartwake/api/v1/devices/:id/samples
//   - GET  /smartwake/api/v1/devices/:id/status
//   - GET  /smartwake/api/v1/devices/:id/records?limit=20
func (h *SmartWakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, SmartWakePrefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	deviceID, action := parts[0], parts[1]

	method := http.MethodPost
	if action == "status" || action == "records" {
		method = http.MethodGet
	}
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "arm":
		h.Arm(w, r, deviceID)
	case "activate":
		h.transition(w, r, deviceID, h.svc.Activate)
	case "cancel":
		h.transition(w, r, deviceID, h.svc.Cancel)
	case "reset":
		h.transition(w, r, deviceID, h.svc.Reset)
	case "samples":
		h.Samples(w, r, deviceID)
	case "status":
		h.transition(w, r, deviceID, h.svc.Status)
	case "records":
		h.Records(w, r, deviceID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type transitionFunc func(ctx context.Context, tenantID, deviceID string) (scheduler.Status, error)

func (h *SmartWakeHandler) transition(w http.ResponseWriter, r *http.Request, deviceID string, fn transitionFunc) {
	status, err := fn(r.Context(), tenantIDFromReq(r), deviceID)
	if err != nil {
		h.fail(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

// Arm body 为空时使用设备保存的设置
// {"target_time":"07:00","window_minutes":30,"smart_enabled":true,"weekdays":"1-5","timezone":"Asia/Shanghai"}
func (h *SmartWakeHandler) Arm(w http.ResponseWriter, r *http.Request, deviceID string) {
	var body repository.WakeSettingsConfig
	present, err := readBodyJSON(r, 1<<16, &body)
	if err != nil {
		writeJSON(w, http.StatusOK, Warn("invalid request body"))
		return
	}

	var settings *models.AlarmSettings
	if present && body.TargetTime != "" {
		s, err := body.ToAlarmSettings(h.defaults)
		if err != nil {
			writeJSON(w, http.StatusOK, Warn(err.Error()))
			return
		}
		settings = &s
	}

	status, err := h.svc.Arm(r.Context(), tenantIDFromReq(r), deviceID, settings)
	if err != nil {
		h.fail(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

type sampleItem struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
}

type samplesRequest struct {
	sampleItem
	Samples []sampleItem `json:"samples"`
}

// Samples 接收单条 {"timestamp","phase"} 或批量 {"samples":[...]}
func (h *SmartWakeHandler) Samples(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req samplesRequest
	if _, err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Warn("invalid request body"))
		return
	}
	items := req.Samples
	if len(items) == 0 && !req.Timestamp.IsZero() {
		items = []sampleItem{req.sampleItem}
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusOK, Warn("samples are required"))
		return
	}

	tenantID := tenantIDFromReq(r)
	for _, item := range items {
		if item.Timestamp.IsZero() {
			writeJSON(w, http.StatusOK, Warn("sample timestamp is required"))
			return
		}
		sample := models.PhaseSample{Timestamp: item.Timestamp, Phase: models.ParsePhaseKind(item.Phase)}
		if err := h.svc.Ingest(r.Context(), tenantID, deviceID, sample); err != nil {
			h.fail(w, deviceID, err)
			return
		}
	}

	status, err := h.svc.Status(r.Context(), tenantID, deviceID)
	if err != nil {
		h.fail(w, deviceID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

// Records GET ?limit=20
func (h *SmartWakeHandler) Records(w http.ResponseWriter, r *http.Request, deviceID string) {
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	records, err := h.svc.Records(r.Context(), tenantIDFromReq(r), deviceID, limit)
	if err != nil {
		h.fail(w, deviceID, err)
		return
	}
	if records == nil {
		records = []*models.AlarmRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": records, "total": len(records)}))
}

// fail 业务错误统一以 HTTP 200 返回：预期错误为 warning，其余为 error 并记录日志
func (h *SmartWakeHandler) fail(w http.ResponseWriter, deviceID string, err error) {
	if isExpected(err) {
		writeJSON(w, http.StatusOK, Warn(err.Error()))
		return
	}
	h.logger.Error("Smart wake request failed",
		zap.String("device_id", deviceID),
		zap.Error(err),
	)
	writeJSON(w, http.StatusOK, Fail(err.Error()))
}

var expectedErrors = []error{
	scheduler.ErrInvalidSettings,
	scheduler.ErrInvalidState,
	auth.ErrNotAuthorized,
	service.ErrSessionNotFound,
	service.ErrSettingsNotFound,
}

func isExpected(err error) bool {
	for _, target := range expectedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
