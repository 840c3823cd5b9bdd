package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/clinic/clinic/internal/platform/reporting"
)

func money(v int64) string { return strconv.FormatInt(v, 10) }

func footerNote(clinicName string) string {
	return fmt.Sprintf("This receipt is system generated. Thank you for trusting %s.", clinicName)
}

// Table lays the monthly report out as an exportable grid with a totals row.
func (r *MonthlyReport) Table() *reporting.Table {
	t := &reporting.Table{
		Title:    r.Clinic,
		Subtitle: []string{r.Doctor, r.Title},
		Columns: []reporting.Column{
			{Title: "#", Weight: 10, Align: "C"},
			{Title: "Name", Weight: 40},
			{Title: "Admit Date", Weight: 24},
			{Title: "Mobile", Weight: 26},
			{Title: "Address", Weight: 55},
			{Title: "Disease", Weight: 32},
			{Title: "Total Cost", Weight: 22, Align: "R"},
			{Title: "Paid", Weight: 22, Align: "R"},
			{Title: "Balance", Weight: 22, Align: "R"},
		},
		Rows: make([][]string, 0, len(r.Rows)),
		Footer: []string{
			"", "Total", "", "", "", "",
			money(r.Totals.TotalCost), money(r.Totals.TotalPaid), money(r.Totals.Balance),
		},
		Note: footerNote(r.Clinic),
	}
	for _, row := range r.Rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(row.Index), row.Name, row.VisitDate, row.Mobile, row.Address, row.Disease,
			money(row.TotalCost), money(row.TotalPaid), money(row.Balance),
		})
	}
	return t
}

func (r *MonthlyReport) WriteCSV(w io.Writer) error { return r.Table().WriteCSV(w) }
func (r *MonthlyReport) WritePDF(w io.Writer) error { return r.Table().WritePDF(w) }

// Table lays the statement out as a payment history with the patient's
// details and balance in the heading. Payment dates are rendered in loc.
func (s *Statement) Table(loc *time.Location) *reporting.Table {
	t := &reporting.Table{
		Title: s.Clinic,
		Subtitle: []string{
			s.Doctor,
			fmt.Sprintf("%s | %s | %s", s.Patient.Name, s.Patient.Mobile, s.Patient.Address),
			fmt.Sprintf("Disease: %s | Admit Date: %s", s.Patient.Disease, s.VisitDate),
			fmt.Sprintf("Total Cost: %d | Total Paid: %d | Balance: %d", s.Patient.TotalCost, s.TotalPaid, s.Balance),
		},
		Columns: []reporting.Column{
			{Title: "#", Weight: 1, Align: "C"},
			{Title: "Date", Weight: 3},
			{Title: "Amount", Weight: 3, Align: "R"},
		},
		Rows:   make([][]string, 0, len(s.Payments)),
		Footer: []string{"", "Total", money(s.TotalPaid)},
		Note:   footerNote(s.Clinic),
	}
	for i, p := range s.Payments {
		t.Rows = append(t.Rows, []string{strconv.Itoa(i + 1), p.Date.In(loc).Format(VisitDateLayout), money(p.Amount)})
	}
	return t
}
