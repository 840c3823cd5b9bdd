package report

import (
	"fmt"
	"time"

	"github.com/clinic/clinic/internal/domain/clinic"
)

// VisitDateLayout renders visit dates as DD-MM-YYYY.
const VisitDateLayout = "02-01-2006"

// Row is one patient line of the monthly report.
type Row struct {
	Index     int    `json:"index"`
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	VisitDate string `json:"visitDate"`
	Mobile    string `json:"mobile"`
	Address   string `json:"address"`
	Disease   string `json:"disease"`
	TotalCost int64  `json:"totalCost"`
	TotalPaid int64  `json:"totalPaid"`
	Balance   int64  `json:"balance"`
}

// Totals sums the money columns of a report.
type Totals struct {
	TotalCost int64 `json:"totalCost"`
	TotalPaid int64 `json:"totalPaid"`
	Balance   int64 `json:"balance"`
}

func (t *Totals) add(r Row) {
	t.TotalCost += r.TotalCost
	t.TotalPaid += r.TotalPaid
	t.Balance += r.Balance
}

// MonthlyReport lists every patient who visited in one calendar month.
type MonthlyReport struct {
	Clinic       string    `json:"clinic"`
	Doctor       string    `json:"doctor"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	Title        string    `json:"title"`
	GeneratedAt  time.Time `json:"generatedAt"`
	Rows         []Row     `json:"rows"`
	PatientCount int       `json:"patientCount"`
	Totals       Totals    `json:"totals"`
}

// FileName is the download name used for exports, without extension.
func (r *MonthlyReport) FileName() string {
	return fmt.Sprintf("Patient_Report_%d_%d", r.Month, r.Year)
}

// Statement is one patient's payment history with the derived balance.
type Statement struct {
	Clinic      string           `json:"clinic"`
	Doctor      string           `json:"doctor"`
	Patient     clinic.Patient   `json:"patient"`
	VisitDate   string           `json:"visitDate"`
	Payments    []clinic.Payment `json:"payments"`
	TotalPaid   int64            `json:"totalPaid"`
	Balance     int64            `json:"balance"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// Dashboard carries the headline counts shown on the home page.
type Dashboard struct {
	TotalPatients int `json:"totalPatients"`
}
