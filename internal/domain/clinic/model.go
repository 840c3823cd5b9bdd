package clinic

import (
	"sort"
	"strings"
	"time"
)

// Patient is a treatment record with an agreed total cost and a visit date.
type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Mobile      string    `json:"mobile"`
	Disease     string    `json:"disease"`
	TotalCost   int64     `json:"totalCost"`
	DateOfVisit time.Time `json:"dateOfVisit"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PatientUpdate carries a partial replacement of patient fields. Nil fields
// are left untouched.
type PatientUpdate struct {
	Name        *string    `json:"name,omitempty"`
	Address     *string    `json:"address,omitempty"`
	Mobile      *string    `json:"mobile,omitempty"`
	Disease     *string    `json:"disease,omitempty"`
	TotalCost   *int64     `json:"totalCost,omitempty"`
	DateOfVisit *time.Time `json:"dateOfVisit,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u *PatientUpdate) Empty() bool {
	return u.Name == nil && u.Address == nil && u.Mobile == nil &&
		u.Disease == nil && u.TotalCost == nil && u.DateOfVisit == nil
}

// Apply copies the set fields of u onto p.
func (u *PatientUpdate) Apply(p *Patient) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Address != nil {
		p.Address = *u.Address
	}
	if u.Mobile != nil {
		p.Mobile = *u.Mobile
	}
	if u.Disease != nil {
		p.Disease = *u.Disease
	}
	if u.TotalCost != nil {
		p.TotalCost = *u.TotalCost
	}
	if u.DateOfVisit != nil {
		p.DateOfVisit = *u.DateOfVisit
	}
}

// Payment is a single installment recorded against a patient. PatientID is a
// reference only: payments outlive the patient they point at.
type Payment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Amount    int64     `json:"amount"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PaymentUpdate is the correction applied to an existing payment.
type PaymentUpdate struct {
	Amount int64      `json:"amount"`
	Date   *time.Time `json:"date,omitempty"`
}

// PatientWithPayments is a patient joined to every payment referencing it.
type PatientWithPayments struct {
	Patient
	Payments []Payment `json:"payments"`
}

// Balance is the financial state derived from a patient's payment history.
type Balance struct {
	TotalPaid int64 `json:"totalPaid"`
	Balance   int64 `json:"balance"`
}

// ComputeBalance sums the payments and subtracts them from the patient's
// total cost. The result is negative on overpayment and is not clamped.
func ComputeBalance(p Patient, payments []Payment) Balance {
	var paid int64
	for _, pay := range payments {
		paid += pay.Amount
	}
	return Balance{TotalPaid: paid, Balance: p.TotalCost - paid}
}

// Balance computes the balance of the joined record.
func (p PatientWithPayments) Balance() Balance {
	return ComputeBalance(p.Patient, p.Payments)
}

// SortPaymentsForDisplay orders payments by date descending, id ascending.
func SortPaymentsForDisplay(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		if !payments[i].Date.Equal(payments[j].Date) {
			return payments[i].Date.After(payments[j].Date)
		}
		return payments[i].ID < payments[j].ID
	})
}

// SortByVisitDesc orders aggregated patients by visit date descending with
// the id as tie-breaker, so repeated calls on unchanged data agree.
func SortByVisitDesc(items []PatientWithPayments) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].DateOfVisit, items[j].DateOfVisit
		if !a.Equal(b) {
			return a.After(b)
		}
		return items[i].ID < items[j].ID
	})
}

// FilterPatients returns the patients whose name contains query
// (case-insensitive) or whose mobile contains query. An empty query matches
// every patient. Relative order of all is preserved.
func FilterPatients(all []Patient, query string) []Patient {
	out := make([]Patient, 0, len(all))
	if query == "" {
		return append(out, all...)
	}
	q := strings.ToLower(query)
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(p.Mobile, query) {
			out = append(out, p)
		}
	}
	return out
}
