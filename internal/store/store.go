package store

import (
	"context"
	"time"

	"github.com/sells-group/rfq-cli/internal/model"
)

// EventFilter selects audit events. Zero values leave a dimension unbounded;
// Since and Until are inclusive.
type EventFilter struct {
	RFQID string          `json:"rfq_id,omitempty"`
	Kind  model.EventKind `json:"kind,omitempty"`
	Since time.Time       `json:"since,omitempty"`
	Until time.Time       `json:"until,omitempty"`
	Limit int             `json:"limit,omitempty"`
}

// Store persists the attribute records and the append-only audit log. Audit
// events can only be appended and read.
type Store interface {
	// Attribute records
	CreateRFQ(ctx context.Context, rfq *model.RFQ) error
	GetRFQ(ctx context.Context, id string) (*model.RFQ, error)
	ListRFQs(ctx context.Context, limit, offset int) ([]model.RFQ, error)
	UpdateRFQ(ctx context.Context, rfq *model.RFQ) error

	// CommitEvaluation writes the evaluated record and its audit events in
	// one transaction. On error nothing is written.
	CommitEvaluation(ctx context.Context, rfq *model.RFQ, events []model.AuditEvent) error

	// Audit log
	AppendEvents(ctx context.Context, events ...model.AuditEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]model.AuditEvent, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
