package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fleettrack/internal/domain/alert"
	"fleettrack/internal/domain/user"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"
)

// FleetHTTPHandler adapts HTTP requests to the FleetService.
type FleetHTTPHandler struct {
	svc    ports.FleetService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewFleetHTTPHandler wires an HTTP handler around the FleetService.
func NewFleetHTTPHandler(svc ports.FleetService, log *logger.Logger, auth *jwt.Manager) *FleetHTTPHandler {
	return &FleetHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts directory, dashboard, and alert endpoints on the
// provided mux.
func (handler *FleetHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	allRoles := []user.Role{user.RoleOperator, user.RoleManager, user.RoleAdmin}

	mux.HandleFunc("GET /devices", mw.Instrument("/devices",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleListDevices),
	))
	mux.HandleFunc("GET /devices/{device_id}", mw.Instrument("/devices/{device_id}",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleGetDevice),
	))
	mux.HandleFunc("GET /dashboard/stats", mw.Instrument("/dashboard/stats",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleStats),
	))
	mux.HandleFunc("POST /alerts", mw.Instrument("/alerts",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleCreateAlert),
	))
	mux.HandleFunc("GET /alerts", mw.Instrument("/alerts",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleListAlerts),
	))
	mux.HandleFunc("POST /alerts/{alert_id}/resolve", mw.Instrument("/alerts/{alert_id}/resolve",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleResolveAlert),
	))
}

type deviceResponse struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	IMEI      string     `json:"imei"`
	Name      string     `json:"name"`
	SIMNumber string     `json:"sim_number,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Online    bool       `json:"online"`
	CreatedAt time.Time  `json:"created_at"`
}

func deviceView(v ports.DeviceView) deviceResponse {
	return deviceResponse{
		ID:        v.ID,
		CompanyID: v.CompanyID,
		IMEI:      v.IMEI,
		Name:      v.Name,
		SIMNumber: v.SIMNumber,
		LastSeen:  v.LastSeen,
		Online:    v.Online,
		CreatedAt: v.CreatedAt,
	}
}

type alertResponse struct {
	ID         string     `json:"id"`
	DeviceID   string     `json:"device_id"`
	CompanyID  string     `json:"company_id"`
	AlertType  string     `json:"alert_type"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func alertView(a *alert.Alert) alertResponse {
	return alertResponse{
		ID:         a.ID,
		DeviceID:   a.DeviceID,
		CompanyID:  a.CompanyID,
		AlertType:  a.AlertType,
		Message:    a.Message,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: a.ResolvedAt,
	}
}

func (handler *FleetHTTPHandler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	q := ports.DeviceListQuery{PageQuery: parsePage(r)}
	if raw := r.URL.Query().Get("online"); raw != "" {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "online must be true or false", err)
			return
		}
		q.Online = &online
	}

	views, total, err := handler.svc.ListDevices(ctx, scopeOf(r), q)
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	out := make([]deviceResponse, 0, len(views))
	for _, v := range views {
		out = append(out, deviceView(v))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"devices": out,
		"total":   total,
	})
}

func (handler *FleetHTTPHandler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	view, latest, err := handler.svc.GetDevice(ctx, scopeOf(r), r.PathValue("device_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	body := map[string]any{"device": deviceView(view)}
	if latest != nil {
		body["latest_location"] = map[string]any{
			"latitude":    latest.Latitude,
			"longitude":   latest.Longitude,
			"speed":       latest.Speed,
			"heading":     latest.Heading,
			"recorded_at": latest.RecordedAt,
		}
	}
	handler.jsonResponse(ctx, w, http.StatusOK, body)
}

func (handler *FleetHTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	stats, err := handler.svc.Stats(ctx, scopeOf(r))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, stats)
}

type alertRequest struct {
	DeviceID  string `json:"device_id"`
	AlertType string `json:"alert_type"`
	Message   string `json:"message,omitempty"`
}

func (handler *FleetHTTPHandler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := handler.svc.CreateAlert(ctx, scopeOf(r), ports.AlertInput{
		DeviceID:  req.DeviceID,
		AlertType: req.AlertType,
		Message:   req.Message,
	})
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, alertView(a))
}

func (handler *FleetHTTPHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	q := ports.AlertListQuery{PageQuery: parsePage(r)}
	if raw := r.URL.Query().Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "resolved must be true or false", err)
			return
		}
		q.Resolved = &resolved
	}

	alerts, total, err := handler.svc.ListAlerts(ctx, scopeOf(r), q)
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertView(a))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"alerts": out,
		"total":  total,
	})
}

func (handler *FleetHTTPHandler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	a, err := handler.svc.ResolveAlert(ctx, scopeOf(r), r.PathValue("alert_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, alertView(a))
}
