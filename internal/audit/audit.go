// Package audit emits one event per terminal movement outcome to the audit
// collaborator. Emission is fire-and-forget: delivery failure never rolls
// back a movement.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ultimate-banking-app/ledger-engine/internal/domain"
)

// Event describes a terminal movement result.
type Event struct {
	RequestID   string              `json:"request_id"`
	Kind        domain.MovementKind `json:"kind"`
	AccountIDs  []string            `json:"account_ids"`
	ChangeTypes []domain.ChangeType `json:"change_types"`
	Outcome     string              `json:"outcome"`
	ErrorKind   string              `json:"error_kind,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// Emitter delivers audit events best-effort.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter writes audit events to the structured log. It is the default
// when no broker is configured.
type LogEmitter struct {
	log *zap.Logger
}

func NewLogEmitter(log *zap.Logger) *LogEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, event Event) {
	e.log.Info("movement audited",
		zap.String("request_id", event.RequestID),
		zap.String("kind", string(event.Kind)),
		zap.Strings("account_ids", event.AccountIDs),
		zap.String("outcome", event.Outcome),
		zap.String("error_kind", event.ErrorKind),
	)
}
