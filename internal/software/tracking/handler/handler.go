package handler

import (
	"encoding/json"
	"net/http"

	"fleettrack/internal/domain/user"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"
	"fleettrack/internal/software/tracking/service"
)

// TrackingHTTPHandler adapts HTTP requests to the TrackingService.
type TrackingHTTPHandler struct {
	svc    ports.TrackingService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewTrackingHTTPHandler wires an HTTP handler around the TrackingService.
func NewTrackingHTTPHandler(svc ports.TrackingService, log *logger.Logger, auth *jwt.Manager) *TrackingHTTPHandler {
	return &TrackingHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts telemetry endpoints on the provided mux.
func (handler *TrackingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	allRoles := []user.Role{user.RoleOperator, user.RoleManager, user.RoleAdmin}

	mux.HandleFunc("POST /devices/{device_id}/locations", mw.Instrument("/devices/{device_id}/locations",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleIngest),
	))
	mux.HandleFunc("GET /devices/{device_id}/locations", mw.Instrument("/devices/{device_id}/locations",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleHistory),
	))
	mux.HandleFunc("GET /devices/{device_id}/locations/latest", mw.Instrument("/devices/{device_id}/locations/latest",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleLatest),
	))
	mux.HandleFunc("GET /devices/{device_id}/route", mw.Instrument("/devices/{device_id}/route",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleRoute),
	))
	mux.HandleFunc("GET /locations/heatmap", mw.Instrument("/locations/heatmap",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleHeatmap),
	))
}

type ingestRequest struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Speed     *float64        `json:"speed,omitempty"`
	Heading   *float64        `json:"heading,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

func (handler *TrackingHTTPHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	scope := scopeOf(r)
	deviceID := r.PathValue("device_id")
	ctx = handler.logger.WithDeviceID(ctx, deviceID)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := handler.svc.Ingest(ctx, scope, ports.IngestInput{
		DeviceID:   deviceID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Speed:      req.Speed,
		Heading:    req.Heading,
		RawPayload: req.Raw,
	})
	if err != nil {
		if err == service.ErrRateLimited {
			handler.httpError(ctx, w, http.StatusTooManyRequests, "Sample rate exceeded for device", err)
			return
		}
		handler.faultError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, res)
}

func (handler *TrackingHTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	scope := scopeOf(r)
	deviceID := r.PathValue("device_id")

	window, err := parseWindow(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	res, err := handler.svc.History(ctx, scope, deviceID, window, parsePage(r))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"locations": sampleViews(res.Samples),
		"total":     res.Total,
	})
}

func (handler *TrackingHTTPHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	scope := scopeOf(r)

	sample, err := handler.svc.Latest(ctx, scope, r.PathValue("device_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, sampleView(sample))
}

func (handler *TrackingHTTPHandler) handleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	scope := scopeOf(r)

	window, err := parseWindow(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	res, err := handler.svc.ComputeRoute(ctx, scope, r.PathValue("device_id"), window)
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"points": sampleViews(res.Samples),
		"stats":  res.Stats,
	})
}

func (handler *TrackingHTTPHandler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	scope := scopeOf(r)

	window, err := parseWindow(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	buckets, err := handler.svc.Heatmap(ctx, scope, r.URL.Query().Get("device_id"), window)
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{"buckets": buckets})
}
