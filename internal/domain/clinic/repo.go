package clinic

import (
	"context"
	"time"
)

// VisitRange is the half-open window [From, To) on Patient.DateOfVisit.
type VisitRange struct {
	From time.Time
	To   time.Time
}

// PatientRepository persists patients. Implementations return errors that
// match ErrNotFound for missing records, ErrValidation for ids the store
// cannot parse, and ErrPersistence for driver failures.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Update(ctx context.Context, id string, u *PatientUpdate) (*Patient, error)
	Delete(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// All returns every patient, most recently created first.
	All(ctx context.Context) ([]Patient, error)
	Count(ctx context.Context) (int, error)
	// Aggregate left-joins patients to their payments with a single batched
	// payment lookup. A nil range selects every patient.
	Aggregate(ctx context.Context, r *VisitRange) ([]PatientWithPayments, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, id string, amount int64, date time.Time) (*Payment, error)
	// ListByPatient returns payments newest first.
	ListByPatient(ctx context.Context, patientID string) ([]Payment, error)
}
