package clinic

import (
	"context"
	"time"
)

type Service struct {
	patients PatientRepository
	payments PaymentRepository
	loc      *time.Location
	now      func() time.Time
	notifier Notifier
}

// NewService wires the repositories. loc is the clinic time zone used for
// month boundaries; nil means time.Local.
func NewService(patients PatientRepository, payments PaymentRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{patients: patients, payments: payments, loc: loc, now: time.Now, notifier: nopNotifier{}}
}

// Location returns the clinic time zone.
func (s *Service) Location() *time.Location { return s.loc }

// -- Patient --

// CreatePatient stores a new patient. A zero DateOfVisit defaults to now.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validateNewPatient(p); err != nil {
		return err
	}
	if p.DateOfVisit.IsZero() {
		p.DateOfVisit = s.now()
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.notify(ctx, ActionCreated, ResourcePatient, p.ID, p.ID)
	return nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, id string, u *PatientUpdate) (*Patient, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if err := validatePatientUpdate(u); err != nil {
		return nil, err
	}
	p, err := s.patients.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ActionUpdated, ResourcePatient, p.ID, p.ID)
	return p, nil
}

// DeletePatient removes the patient only. Payments referencing it are kept.
func (s *Service) DeletePatient(ctx context.Context, id string) (*Patient, error) {
	p, err := s.patients.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ActionDeleted, ResourcePatient, p.ID, p.ID)
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) CountPatients(ctx context.Context) (int, error) {
	return s.patients.Count(ctx)
}

// AggregatePatients joins every patient to its payments. A non-nil filter
// narrows the result to visits inside that month in the clinic time zone.
func (s *Service) AggregatePatients(ctx context.Context, f *MonthFilter) ([]PatientWithPayments, error) {
	var vr *VisitRange
	if f != nil {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		from, to := f.Range(s.loc)
		vr = &VisitRange{From: from, To: to}
	}
	return s.patients.Aggregate(ctx, vr)
}

// SearchPatients returns every patient matching query, in listing order.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	all, err := s.patients.All(ctx)
	if err != nil {
		return nil, err
	}
	return FilterPatients(all, query), nil
}

// GetBalance recomputes the patient's balance from its payment history.
func (s *Service) GetBalance(ctx context.Context, patientID string) (*PatientWithPayments, Balance, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, Balance{}, err
	}
	pays, err := s.payments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, Balance{}, err
	}
	pw := &PatientWithPayments{Patient: *p, Payments: pays}
	return pw, pw.Balance(), nil
}

// -- Payment --

// CreatePayment records an installment for an existing patient. A zero Date
// defaults to now.
func (s *Service) CreatePayment(ctx context.Context, p *Payment) error {
	if err := validateID("patientId", p.PatientID); err != nil {
		return err
	}
	if err := validateAmount(p.Amount); err != nil {
		return err
	}
	if _, err := s.patients.GetByID(ctx, p.PatientID); err != nil {
		return err
	}
	if p.Date.IsZero() {
		p.Date = s.now()
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return err
	}
	s.notify(ctx, ActionCreated, ResourcePayment, p.ID, p.PatientID)
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// ListPayments returns a patient's payments newest first. An empty patient id
// yields an empty list.
func (s *Service) ListPayments(ctx context.Context, patientID string) ([]Payment, error) {
	if patientID == "" {
		return []Payment{}, nil
	}
	return s.payments.ListByPatient(ctx, patientID)
}

// UpdatePayment overwrites amount and date. A nil date resets it to now.
func (s *Service) UpdatePayment(ctx context.Context, id string, u *PaymentUpdate) (*Payment, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if err := validateAmount(u.Amount); err != nil {
		return nil, err
	}
	date := s.now()
	if u.Date != nil {
		if u.Date.IsZero() {
			return nil, invalid("date", "must be a valid timestamp")
		}
		date = *u.Date
	}
	p, err := s.payments.Update(ctx, id, u.Amount, date)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ActionUpdated, ResourcePayment, p.ID, p.PatientID)
	return p, nil
}
