package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/telemetry"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/ports"
)

// scopeOf extracts the caller's tenant scope from the validated claims.
func scopeOf(r *http.Request) ports.Scope {
	if claims := jwt.RequireClaims(r); claims != nil {
		return claims.Scope()
	}
	return ports.Scope{}
}

// parseWindow reads optional `from` / `to` RFC3339 query bounds.
func parseWindow(r *http.Request) (telemetry.TimeRange, error) {
	var window telemetry.TimeRange
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, fmt.Errorf("invalid from timestamp %q", raw)
		}
		window.Start = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return window, fmt.Errorf("invalid to timestamp %q", raw)
		}
		window.End = &t
	}
	if window.Start != nil && window.End != nil && window.End.Before(*window.Start) {
		return window, fmt.Errorf("window end precedes start")
	}
	return window, nil
}

// parsePage reads pagination and sorting query parameters.
func parsePage(r *http.Request) ports.PageQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return ports.PageQuery{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sort_by"),
		SortOrder: ports.SortOrder(strings.ToLower(q.Get("sort_order"))),
	}
}

type sampleResponse struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Speed      *float64        `json:"speed,omitempty"`
	Heading    *float64        `json:"heading,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

func sampleView(s *telemetry.LocationSample) sampleResponse {
	return sampleResponse{
		ID:         s.ID,
		DeviceID:   s.DeviceID,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Speed:      s.Speed,
		Heading:    s.Heading,
		RecordedAt: s.RecordedAt,
		Raw:        s.RawPayload,
	}
}

func sampleViews(samples []*telemetry.LocationSample) []sampleResponse {
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, sampleView(s))
	}
	return out
}

// faultError translates a service fault into an HTTP error response.
func (handler *TrackingHTTPHandler) faultError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindUnavailable:
		status = http.StatusServiceUnavailable
	case fault.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	handler.httpError(ctx, w, status, err.Error(), err)
}

// jsonResponse encodes data to a JSON HTTP response.
func (handler *TrackingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error
	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *TrackingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
