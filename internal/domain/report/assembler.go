package report

import (
	"context"
	"fmt"
	"time"

	"github.com/clinic/clinic/internal/domain/clinic"
)

// Source is the read side of the clinic service the assembler needs.
type Source interface {
	AggregatePatients(ctx context.Context, f *clinic.MonthFilter) ([]clinic.PatientWithPayments, error)
	GetBalance(ctx context.Context, patientID string) (*clinic.PatientWithPayments, clinic.Balance, error)
	CountPatients(ctx context.Context) (int, error)
}

// Letterhead identifies the practice on printed reports.
type Letterhead struct {
	Clinic string
	Doctor string
}

// Assembler builds read-only report views. It never writes to the store.
type Assembler struct {
	src  Source
	head Letterhead
	loc  *time.Location
	now  func() time.Time
}

// NewAssembler returns an assembler rendering dates in loc. nil means
// time.Local.
func NewAssembler(src Source, head Letterhead, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{src: src, head: head, loc: loc, now: time.Now}
}

// BuildMonthlyReport lists every patient visiting in month/year with paid
// and balance columns derived from their payments. No matches is an empty
// report, not an error.
func (a *Assembler) BuildMonthlyReport(ctx context.Context, month, year int) (*MonthlyReport, error) {
	f := &clinic.MonthFilter{Month: month, Year: year}
	items, err := a.src.AggregatePatients(ctx, f)
	if err != nil {
		return nil, err
	}

	r := &MonthlyReport{
		Clinic:      a.head.Clinic,
		Doctor:      a.head.Doctor,
		Month:       month,
		Year:        year,
		Title:       fmt.Sprintf("Monthly Patient Report - %s", f.Label()),
		GeneratedAt: a.now(),
		Rows:        make([]Row, 0, len(items)),
	}
	for i, pw := range items {
		bal := pw.Balance()
		row := Row{
			Index:     i + 1,
			PatientID: pw.ID,
			Name:      pw.Name,
			VisitDate: pw.DateOfVisit.In(a.loc).Format(VisitDateLayout),
			Mobile:    pw.Mobile,
			Address:   pw.Address,
			Disease:   pw.Disease,
			TotalCost: pw.TotalCost,
			TotalPaid: bal.TotalPaid,
			Balance:   bal.Balance,
		}
		r.Totals.add(row)
		r.Rows = append(r.Rows, row)
	}
	r.PatientCount = len(r.Rows)
	return r, nil
}

// BuildStatement returns one patient's payment history, newest first.
func (a *Assembler) BuildStatement(ctx context.Context, patientID string) (*Statement, error) {
	pw, bal, err := a.src.GetBalance(ctx, patientID)
	if err != nil {
		return nil, err
	}
	payments := append([]clinic.Payment{}, pw.Payments...)
	clinic.SortPaymentsForDisplay(payments)
	return &Statement{
		Clinic:      a.head.Clinic,
		Doctor:      a.head.Doctor,
		Patient:     pw.Patient,
		VisitDate:   pw.DateOfVisit.In(a.loc).Format(VisitDateLayout),
		Payments:    payments,
		TotalPaid:   bal.TotalPaid,
		Balance:     bal.Balance,
		GeneratedAt: a.now(),
	}, nil
}

func (a *Assembler) BuildDashboard(ctx context.Context) (*Dashboard, error) {
	n, err := a.src.CountPatients(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{TotalPatients: n}, nil
}

// Location returns the zone dates are rendered in.
func (a *Assembler) Location() *time.Location { return a.loc }
