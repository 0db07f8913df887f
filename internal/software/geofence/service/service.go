package service

import (
	"context"
	"strings"

	"fleettrack/internal/domain/fault"
	"fleettrack/internal/domain/geo"
	"fleettrack/internal/general/logger"
	"fleettrack/internal/general/metrics"
	"fleettrack/internal/ports"
)

// geofenceService holds all dependencies required by geofence management
// and membership evaluation.
type geofenceService struct {
	logger    *logger.Logger
	fences    ports.GeofenceRepository
	devices   ports.DeviceRepository
	locations ports.LocationRepository
}

// NewGeofenceService constructs the service with required dependencies.
func NewGeofenceService(
	log *logger.Logger,
	fences ports.GeofenceRepository,
	devices ports.DeviceRepository,
	locations ports.LocationRepository,
) ports.GeofenceService {
	return &geofenceService{
		logger:    log,
		fences:    fences,
		devices:   devices,
		locations: locations,
	}
}

// shapeFromInput builds the tagged shape variant from operator input.
func shapeFromInput(in ports.GeofenceInput) (geo.Shape, error) {
	switch geo.ShapeType(strings.ToLower(strings.TrimSpace(in.ShapeType))) {
	case geo.ShapeCircle:
		if in.Center == nil || in.RadiusMeters == nil {
			return geo.Shape{}, fault.New(fault.KindValidation, "circle requires center and radius_meters")
		}
		shape, err := geo.NewCircleShape(*in.Center, *in.RadiusMeters)
		if err != nil {
			return geo.Shape{}, fault.Wrap(fault.KindValidation, err.Error(), err)
		}
		return shape, nil
	case geo.ShapePolygon:
		shape, err := geo.NewPolygonShape(in.Ring)
		if err != nil {
			return geo.Shape{}, fault.Wrap(fault.KindValidation, err.Error(), err)
		}
		return shape, nil
	default:
		return geo.Shape{}, fault.Validationf("unsupported shape type %q", in.ShapeType)
	}
}

// companyFor resolves which tenant a write lands in. Only an admin may
// address another company.
func companyFor(scope ports.Scope, requested string) (string, error) {
	if scope.Admin() {
		if requested == "" {
			return "", fault.New(fault.KindValidation, "company_id is required for admin writes")
		}
		return requested, nil
	}
	return scope.CompanyID, nil
}

// Create validates and persists a new geofence.
func (service *geofenceService) Create(ctx context.Context, scope ports.Scope, in ports.GeofenceInput) (*geo.Geofence, error) {
	shape, err := shapeFromInput(in)
	if err != nil {
		return nil, err
	}
	companyID, err := companyFor(scope, in.CompanyID)
	if err != nil {
		return nil, err
	}

	fence, err := geo.NewGeofence(companyID, in.Name, shape)
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err.Error(), err)
	}
	if in.Active != nil {
		fence.Active = *in.Active
	}
	if err := service.fences.Create(ctx, fence); err != nil {
		return nil, err
	}

	service.logger.Info(ctx, "geofence_created", "Geofence created", map[string]any{
		"geofence_id": fence.ID,
		"company_id":  fence.CompanyID,
		"shape_type":  fence.Shape.Type.String(),
	})
	return fence, nil
}

// Get fetches one geofence within the caller's tenant.
func (service *geofenceService) Get(ctx context.Context, scope ports.Scope, id string) (*geo.Geofence, error) {
	return service.fences.GetByID(ctx, scope, id)
}

// List returns one page of the tenant's geofences.
func (service *geofenceService) List(ctx context.Context, scope ports.Scope, q ports.PageQuery) ([]*geo.Geofence, int, error) {
	return service.fences.List(ctx, scope, q)
}

// Update replaces the geofence's name and shape. A non-nil Active input
// toggles the flag; nil leaves it as stored. The record stays in its
// original tenant regardless of input.
func (service *geofenceService) Update(ctx context.Context, scope ports.Scope, id string, in ports.GeofenceInput) (*geo.Geofence, error) {
	existing, err := service.fences.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	shape, err := shapeFromInput(in)
	if err != nil {
		return nil, err
	}
	existing.Name = strings.TrimSpace(in.Name)
	existing.Shape = shape
	if in.Active != nil {
		existing.Active = *in.Active
	}
	if err := existing.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindValidation, err.Error(), err)
	}

	if err := service.fences.Update(ctx, scope, existing); err != nil {
		return nil, err
	}
	service.logger.Info(ctx, "geofence_updated", "Geofence updated", map[string]any{
		"geofence_id": existing.ID,
	})
	return existing, nil
}

// Delete removes one geofence.
func (service *geofenceService) Delete(ctx context.Context, scope ports.Scope, id string) error {
	if err := service.fences.Delete(ctx, scope, id); err != nil {
		return err
	}
	service.logger.Info(ctx, "geofence_deleted", "Geofence deleted", map[string]any{
		"geofence_id": id,
	})
	return nil
}

// CheckDevice evaluates the device's most recent position against one
// geofence or, when geofenceID is empty, every active geofence of the
// device's company. Membership is computed fresh on every call.
func (service *geofenceService) CheckDevice(ctx context.Context, scope ports.Scope, deviceID, geofenceID string) (ports.MembershipReport, error) {
	dev, err := service.devices.GetByID(ctx, scope, deviceID)
	if err != nil {
		return ports.MembershipReport{}, err
	}
	sample, err := service.locations.Latest(ctx, deviceID)
	if err != nil {
		return ports.MembershipReport{}, err
	}

	var fences []geo.Geofence
	if geofenceID != "" {
		fence, err := service.fences.GetByID(ctx, scope, geofenceID)
		if err != nil {
			return ports.MembershipReport{}, err
		}
		fences = []geo.Geofence{*fence}
	} else {
		active, err := service.fences.ListActive(ctx, dev.CompanyID)
		if err != nil {
			return ports.MembershipReport{}, err
		}
		fences = make([]geo.Geofence, 0, len(active))
		for _, fence := range active {
			fences = append(fences, *fence)
		}
	}

	metrics.GeofenceChecks.Inc()
	return ports.MembershipReport{
		DeviceID:   deviceID,
		Location:   sample.Point(),
		RecordedAt: sample.RecordedAt,
		Geofences:  geo.Evaluate(sample.Point(), fences),
	}, nil
}
