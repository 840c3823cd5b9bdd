package clinic

import (
	"context"
	"time"
)

// Ledger change actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Ledger resources.
const (
	ResourcePatient = "patient"
	ResourcePayment = "payment"
)

// Change describes a committed write. PatientID is the owning patient for
// payments and the patient itself for patient changes.
type Change struct {
	Action    string
	Resource  string
	ID        string
	PatientID string
	At        time.Time
}

// Notifier is told about every committed write. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// SetNotifier installs n as the change listener. nil disables notifications.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *Service) notify(ctx context.Context, action, resource, id, patientID string) {
	s.notifier.Notify(ctx, Change{
		Action:    action,
		Resource:  resource,
		ID:        id,
		PatientID: patientID,
		At:        s.now(),
	})
}
