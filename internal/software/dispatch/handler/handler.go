package handler

import (
	"encoding/json"
	"net/http"

	"fleettrack/internal/domain/user"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/mw"
	"fleettrack/internal/ports"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc    ports.DispatchService
	logger *logger.Logger
	auth   *jwt.Manager
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(svc ports.DispatchService, log *logger.Logger, auth *jwt.Manager) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{svc: svc, logger: log, auth: auth}
}

// RegisterRoutes mounts command endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	allRoles := []user.Role{user.RoleOperator, user.RoleManager, user.RoleAdmin}

	mux.HandleFunc("POST /devices/{device_id}/commands", mw.Instrument("/devices/{device_id}/commands",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleSubmit),
	))
	mux.HandleFunc("GET /commands/{command_id}", mw.Instrument("/commands/{command_id}",
		jwt.AuthMiddlewareFunc(handler.auth, allRoles...)(handler.handleGet),
	))
}

type submitRequest struct {
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (handler *DispatchHTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	deviceID := r.PathValue("device_id")
	ctx = handler.logger.WithDeviceID(ctx, deviceID)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := handler.svc.Submit(ctx, scopeOf(r), ports.SubmitCommandInput{
		DeviceID:       deviceID,
		CommandType:    req.CommandType,
		Payload:        req.Payload,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}

	status := http.StatusAccepted
	if res.Replayed {
		status = http.StatusOK
	}
	handler.jsonResponse(ctx, w, status, res)
}

func (handler *DispatchHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	view, err := handler.svc.Get(ctx, scopeOf(r), r.PathValue("command_id"))
	if err != nil {
		handler.faultError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}
