package alert

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMissingDeviceID  = errors.New("device ID is missing")
	ErrMissingCompanyID = errors.New("company ID is missing")
	ErrMissingAlertType = errors.New("alert type is missing")
	ErrAlreadyResolved  = errors.New("alert is already resolved")
)

// Alert is the domain entity corresponding to the `alerts` table. An alert
// is open until resolved_at is set, and resolution happens at most once.
type Alert struct {
	ID         string
	DeviceID   string
	CompanyID  string
	AlertType  string
	Message    string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewAlert constructs an open Alert for a device.
func NewAlert(deviceID, companyID, alertType, message string) (*Alert, error) {
	a := &Alert{
		DeviceID:  strings.TrimSpace(deviceID),
		CompanyID: strings.TrimSpace(companyID),
		AlertType: strings.TrimSpace(alertType),
		Message:   strings.TrimSpace(message),
		CreatedAt: time.Now().UTC(),
	}
	if a.DeviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if a.CompanyID == "" {
		return nil, ErrMissingCompanyID
	}
	if a.AlertType == "" {
		return nil, ErrMissingAlertType
	}
	return a, nil
}

// Resolved reports whether the alert has been resolved.
func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}

// Resolve stamps resolved_at; resolving twice is an error.
func (a *Alert) Resolve(at time.Time) error {
	if a.Resolved() {
		return ErrAlreadyResolved
	}
	a.ResolvedAt = &at
	return nil
}
