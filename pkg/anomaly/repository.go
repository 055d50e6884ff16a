package anomaly

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for anomaly persistence. The detector is
// the only writer of new anomalies; status changes go through Update after a
// domain transition.
type Repository interface {
	// Create stores a new anomaly
	Create(ctx context.Context, anomaly *Anomaly) error

	// GetByID retrieves an anomaly by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Anomaly, error)

	// Update persists a mutated anomaly (status transitions)
	Update(ctx context.Context, anomaly *Anomaly) error

	// List retrieves anomalies with filtering and pagination
	List(ctx context.Context, filter *Filter) ([]*Anomaly, error)

	// CountByStatus returns anomaly counts grouped by status,
	// optionally scoped to one tenant
	CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[Status]int64, error)
}

// TenantDirectory lists the tenants the detector evaluates each cycle
type TenantDirectory interface {
	ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Publisher hands a persisted anomaly off for alert dispatch. The detector
// publishes instead of calling the dispatcher inline so a slow channel
// adapter cannot stall the detection cycle.
type Publisher interface {
	Publish(ctx context.Context, anomaly *Anomaly) error
}
