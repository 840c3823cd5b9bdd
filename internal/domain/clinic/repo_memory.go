package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps patients and payments in process. It backs development
// runs with STORE_BACKEND=memory and the service tests.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	patients map[string]*memPatient
	payments map[string]*memPayment
	// byPatient indexes payment ids by patient id.
	byPatient map[string][]string
}

type memPatient struct {
	Patient
	seq int64
}

type memPayment struct {
	Payment
	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:  map[string]*memPatient{},
		payments:  map[string]*memPayment{},
		byPatient: map[string][]string{},
	}
}

func (s *MemoryStore) Patients() PatientRepository { return &patientRepoMemory{s: s} }
func (s *MemoryStore) Payments() PaymentRepository { return &paymentRepoMemory{s: s} }

func (s *MemoryStore) next() int64 {
	s.seq++
	return s.seq
}

func (s *MemoryStore) paymentsOf(patientID string) []Payment {
	ids := s.byPatient[patientID]
	out := make([]Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.payments[id].Payment)
	}
	SortPaymentsForDisplay(out)
	return out
}

func memParse(field, id string) error {
	if err := validateID(field, id); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid(field, "malformed id")
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoMemory struct{ s *MemoryStore }

func (r *patientRepoMemory) Create(_ context.Context, p *Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.patients[p.ID] = &memPatient{Patient: *p, seq: r.s.next()}
	return nil
}

func (r *patientRepoMemory) GetByID(_ context.Context, id string) (*Patient, error) {
	if err := memParse("id", id); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	mp, ok := r.s.patients[id]
	if !ok {
		return nil, notFound("patient")
	}
	p := mp.Patient
	return &p, nil
}

func (r *patientRepoMemory) Update(_ context.Context, id string, u *PatientUpdate) (*Patient, error) {
	if err := memParse("id", id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mp, ok := r.s.patients[id]
	if !ok {
		return nil, notFound("patient")
	}
	u.Apply(&mp.Patient)
	mp.UpdatedAt = time.Now().UTC()
	p := mp.Patient
	return &p, nil
}

func (r *patientRepoMemory) Delete(_ context.Context, id string) (*Patient, error) {
	if err := memParse("id", id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mp, ok := r.s.patients[id]
	if !ok {
		return nil, notFound("patient")
	}
	delete(r.s.patients, id)
	p := mp.Patient
	return &p, nil
}

// sorted returns patients created most recently first. Callers hold the lock.
func (r *patientRepoMemory) sorted() []*memPatient {
	all := make([]*memPatient, 0, len(r.s.patients))
	for _, mp := range r.s.patients {
		all = append(all, mp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	return all
}

func (r *patientRepoMemory) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.sorted()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	items := make([]*Patient, 0, end-offset)
	for _, mp := range all[offset:end] {
		p := mp.Patient
		items = append(items, &p)
	}
	return items, total, nil
}

func (r *patientRepoMemory) All(_ context.Context) ([]Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.sorted()
	items := make([]Patient, 0, len(all))
	for _, mp := range all {
		items = append(items, mp.Patient)
	}
	return items, nil
}

func (r *patientRepoMemory) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.patients), nil
}

func (r *patientRepoMemory) Aggregate(_ context.Context, vr *VisitRange) ([]PatientWithPayments, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := []PatientWithPayments{}
	for _, mp := range r.s.patients {
		if vr != nil && (mp.DateOfVisit.Before(vr.From) || !mp.DateOfVisit.Before(vr.To)) {
			continue
		}
		items = append(items, PatientWithPayments{Patient: mp.Patient, Payments: r.s.paymentsOf(mp.ID)})
	}
	SortByVisitDesc(items)
	return items, nil
}

// =========== Payment Repository ===========

type paymentRepoMemory struct{ s *MemoryStore }

func (r *paymentRepoMemory) Create(_ context.Context, p *Payment) error {
	if err := memParse("patientId", p.PatientID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.payments[p.ID] = &memPayment{Payment: *p, seq: r.s.next()}
	r.s.byPatient[p.PatientID] = append(r.s.byPatient[p.PatientID], p.ID)
	return nil
}

func (r *paymentRepoMemory) GetByID(_ context.Context, id string) (*Payment, error) {
	if err := memParse("id", id); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	mp, ok := r.s.payments[id]
	if !ok {
		return nil, notFound("payment")
	}
	p := mp.Payment
	return &p, nil
}

func (r *paymentRepoMemory) Update(_ context.Context, id string, amount int64, date time.Time) (*Payment, error) {
	if err := memParse("id", id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mp, ok := r.s.payments[id]
	if !ok {
		return nil, notFound("payment")
	}
	mp.Amount = amount
	mp.Date = date
	mp.UpdatedAt = time.Now().UTC()
	p := mp.Payment
	return &p, nil
}

func (r *paymentRepoMemory) ListByPatient(_ context.Context, patientID string) ([]Payment, error) {
	if err := memParse("patientId", patientID); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.paymentsOf(patientID), nil
}
