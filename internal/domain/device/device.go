package device

import (
	"errors"
	"strings"
	"time"
)

// DefaultFreshnessWindow is the presence window applied when the config
// leaves it unset: a device is online while its last sample is younger than
// this.
const DefaultFreshnessWindow = 5 * time.Minute

var (
	ErrEmptyIMEI      = errors.New("imei cannot be empty")
	ErrEmptyName      = errors.New("device name cannot be empty")
	ErrEmptyCompanyID = errors.New("company_id cannot be empty")
)

// Device is the domain entity corresponding to the `devices` table.
// Devices are created and updated by directory management; the telemetry
// path only ever advances LastSeen.
type Device struct {
	ID        string
	CompanyID string
	IMEI      string
	Name      string
	SIMNumber string
	LastSeen  *time.Time
	CreatedAt time.Time
}

// NewDevice constructs a validated Device.
func NewDevice(companyID, imei, name, simNumber string) (*Device, error) {
	d := &Device{
		CompanyID: strings.TrimSpace(companyID),
		IMEI:      strings.TrimSpace(imei),
		Name:      strings.TrimSpace(name),
		SIMNumber: strings.TrimSpace(simNumber),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks invariants of the Device entity.
func (d *Device) Validate() error {
	if strings.TrimSpace(d.CompanyID) == "" {
		return ErrEmptyCompanyID
	}
	if strings.TrimSpace(d.IMEI) == "" {
		return ErrEmptyIMEI
	}
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// IsOnline derives the online state from the last-seen timestamp. A device
// with no samples yet is offline. The upper boundary is exclusive: a sample
// exactly freshnessWindow old counts as offline.
func IsOnline(lastSeen *time.Time, now time.Time, freshnessWindow time.Duration) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) < freshnessWindow
}

// Online annotates the device itself using the given clock and window.
func (d *Device) Online(now time.Time, freshnessWindow time.Duration) bool {
	return IsOnline(d.LastSeen, now, freshnessWindow)
}
