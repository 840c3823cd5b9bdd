package clinic

import (
	"testing"
	"time"
)

func TestComputeBalance(t *testing.T) {
	tests := []struct {
		name     string
		cost     int64
		amounts  []int64
		wantPaid int64
		wantBal  int64
	}{
		{"no payments", 5000, nil, 0, 5000},
		{"partial", 5000, []int64{1000, 1500}, 2500, 2500},
		{"settled", 3000, []int64{1000, 2000}, 3000, 0},
		{"overpaid is negative", 1000, []int64{800, 700}, 1500, -500},
		{"zero cost", 0, []int64{100}, 100, -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pays []Payment
			for _, a := range tt.amounts {
				pays = append(pays, Payment{Amount: a})
			}
			got := ComputeBalance(Patient{TotalCost: tt.cost}, pays)
			if got.TotalPaid != tt.wantPaid || got.Balance != tt.wantBal {
				t.Errorf("ComputeBalance = %+v, want paid=%d balance=%d", got, tt.wantPaid, tt.wantBal)
			}
		})
	}
}

func TestPatientWithPayments_Balance(t *testing.T) {
	pw := PatientWithPayments{
		Patient:  Patient{TotalCost: 4000},
		Payments: []Payment{{Amount: 1000}, {Amount: 500}},
	}
	if b := pw.Balance(); b.TotalPaid != 1500 || b.Balance != 2500 {
		t.Errorf("Balance() = %+v", b)
	}
}

func TestSortPaymentsForDisplay(t *testing.T) {
	d1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 5)
	pays := []Payment{
		{ID: "c", Date: d1},
		{ID: "b", Date: d2},
		{ID: "a", Date: d1},
	}
	SortPaymentsForDisplay(pays)

	want := []string{"b", "a", "c"}
	for i, id := range want {
		if pays[i].ID != id {
			t.Fatalf("order = %v, want %v", []string{pays[0].ID, pays[1].ID, pays[2].ID}, want)
		}
	}
}

func TestSortByVisitDesc(t *testing.T) {
	d := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	items := []PatientWithPayments{
		{Patient: Patient{ID: "2", DateOfVisit: d}},
		{Patient: Patient{ID: "3", DateOfVisit: d.AddDate(0, 0, 1)}},
		{Patient: Patient{ID: "1", DateOfVisit: d}},
	}
	SortByVisitDesc(items)
	if items[0].ID != "3" || items[1].ID != "1" || items[2].ID != "2" {
		t.Errorf("unexpected order %s %s %s", items[0].ID, items[1].ID, items[2].ID)
	}
}

func TestPatientUpdate_EmptyAndApply(t *testing.T) {
	var u PatientUpdate
	if !u.Empty() {
		t.Fatal("zero update should be empty")
	}

	name := "New Name"
	cost := int64(900)
	u = PatientUpdate{Name: &name, TotalCost: &cost}
	if u.Empty() {
		t.Fatal("update with fields should not be empty")
	}

	p := Patient{Name: "Old", Mobile: "9000000000", TotalCost: 100}
	u.Apply(&p)
	if p.Name != name || p.TotalCost != cost || p.Mobile != "9000000000" {
		t.Errorf("Apply produced %+v", p)
	}
}

func TestFilterPatients(t *testing.T) {
	all := []Patient{
		{ID: "1", Name: "Anita Sharma", Mobile: "9876543210"},
		{ID: "2", Name: "Ravi Kumar", Mobile: "9123456780"},
		{ID: "3", Name: "SHARMILA Roy", Mobile: "7000012345"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"sharm", []string{"1", "3"}},
		{"SHARM", []string{"1", "3"}},
		{"98765", []string{"1"}},
		{"345", []string{"2", "3"}},
		{"zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := FilterPatients(all, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("FilterPatients(%q) returned %d patients, want %d", tt.query, len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFilterPatients_FreshSlice(t *testing.T) {
	all := []Patient{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}}
	got := FilterPatients(all, "")
	got[0].Name = "changed"
	if all[0].Name != "A" {
		t.Error("FilterPatients must not alias its input")
	}
}
