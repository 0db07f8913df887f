package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"fleettrack/internal/domain/geo"
	"fleettrack/internal/domain/user"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"
)

// GeofenceHTTPHandler adapts HTTP requests to the GeofenceService.
type GeofenceHTTPHandler struct {
	svc    ports.GeofenceService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewGeofenceHTTPHandler wires an HTTP handler around the GeofenceService.
func NewGeofenceHTTPHandler(svc ports.GeofenceService, log *logger.Logger, auth *jwt.Manager) *GeofenceHTTPHandler {
	return &GeofenceHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts geofence endpoints on the provided mux. Writes
// require manager privileges; reads and checks are open to operators.
func (handler *GeofenceHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	readRoles := []user.Role{user.RoleOperator, user.RoleManager, user.RoleAdmin}
	writeRoles := []user.Role{user.RoleManager, user.RoleAdmin}

	mux.HandleFunc("POST /geofences", mw.Instrument("/geofences",
		jwt.AuthMiddlewareFunc(handler.auth, writeRoles...)(handler.handleCreate),
	))
	mux.HandleFunc("GET /geofences", mw.Instrument("/geofences",
		jwt.AuthMiddlewareFunc(handler.auth, readRoles...)(handler.handleList),
	))
	mux.HandleFunc("GET /geofences/{geofence_id}", mw.Instrument("/geofences/{geofence_id}",
		jwt.AuthMiddlewareFunc(handler.auth, readRoles...)(handler.handleGet),
	))
	mux.HandleFunc("PUT /geofences/{geofence_id}", mw.Instrument("/geofences/{geofence_id}",
		jwt.AuthMiddlewareFunc(handler.auth, writeRoles...)(handler.handleUpdate),
	))
	mux.HandleFunc("DELETE /geofences/{geofence_id}", mw.Instrument("/geofences/{geofence_id}",
		jwt.AuthMiddlewareFunc(handler.auth, writeRoles...)(handler.handleDelete),
	))
	mux.HandleFunc("GET /devices/{device_id}/geofences/check", mw.Instrument("/devices/{device_id}/geofences/check",
		jwt.AuthMiddlewareFunc(handler.auth, readRoles...)(handler.handleCheckDevice),
	))
}

type geofenceRequest struct {
	Name         string      `json:"name"`
	ShapeType    string      `json:"shape_type"`
	Center       *geo.Point  `json:"center,omitempty"`
	RadiusMeters *float64    `json:"radius_meters,omitempty"`
	Ring         []geo.Point `json:"ring,omitempty"`
	Active       *bool       `json:"active,omitempty"`
	CompanyID    string      `json:"company_id,omitempty"`
}

func (req geofenceRequest) input() ports.GeofenceInput {
	return ports.GeofenceInput{
		Name:         req.Name,
		ShapeType:    req.ShapeType,
		Center:       req.Center,
		RadiusMeters: req.RadiusMeters,
		Ring:         req.Ring,
		Active:       req.Active,
		CompanyID:    req.CompanyID,
	}
}

type geofenceResponse struct {
	ID           string      `json:"id"`
	CompanyID    string      `json:"company_id"`
	Name         string      `json:"name"`
	ShapeType    string      `json:"shape_type"`
	Center       *geo.Point  `json:"center,omitempty"`
	RadiusMeters *float64    `json:"radius_meters,omitempty"`
	Ring         []geo.Point `json:"ring,omitempty"`
	Active       bool        `json:"active"`
	CreatedAt    time.Time   `json:"created_at"`
}

func geofenceView(fence *geo.Geofence) geofenceResponse {
	res := geofenceResponse{
		ID:        fence.ID,
		CompanyID: fence.CompanyID,
		Name:      fence.Name,
		ShapeType: fence.Shape.Type.String(),
		Active:    fence.Active,
		CreatedAt: fence.CreatedAt,
	}
	if fence.Shape.Circle != nil {
		center := fence.Shape.Circle.Center
		radius := fence.Shape.Circle.RadiusMeters
		res.Center = &center
		res.RadiusMeters = &radius
	}
	if fence.Shape.Polygon != nil {
		res.Ring = fence.Shape.Polygon.Ring
	}
	return res
}

func (handler *GeofenceHTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fence, err := handler.svc.Create(ctx, scopeOf(r), req.input())
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, geofenceView(fence))
}

func (handler *GeofenceHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	fence, err := handler.svc.Get(ctx, scopeOf(r), r.PathValue("geofence_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, geofenceView(fence))
}

func (handler *GeofenceHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	fences, total, err := handler.svc.List(ctx, scopeOf(r), parsePage(r))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	views := make([]geofenceResponse, 0, len(fences))
	for _, fence := range fences {
		views = append(views, geofenceView(fence))
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"geofences": views,
		"total":     total,
	})
}

func (handler *GeofenceHTTPHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fence, err := handler.svc.Update(ctx, scopeOf(r), r.PathValue("geofence_id"), req.input())
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, geofenceView(fence))
}

func (handler *GeofenceHTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if err := handler.svc.Delete(ctx, scopeOf(r), r.PathValue("geofence_id")); err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusNoContent, nil)
}

func (handler *GeofenceHTTPHandler) handleCheckDevice(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	ctx = handler.logger.WithDeviceID(ctx, r.PathValue("device_id"))

	report, err := handler.svc.CheckDevice(ctx, scopeOf(r), r.PathValue("device_id"), r.URL.Query().Get("geofence_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, report)
}
