package clinic

import "strings"

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// validateNewPatient checks the fields a patient must carry at creation.
func validateNewPatient(p *Patient) error {
	for _, f := range []struct{ name, value string }{
		{"name", p.Name},
		{"address", p.Address},
		{"mobile", p.Mobile},
		{"disease", p.Disease},
	} {
		if err := requireText(f.name, f.value); err != nil {
			return err
		}
	}
	if p.TotalCost < 0 {
		return invalid("totalCost", "must not be negative")
	}
	return nil
}

func validatePatientUpdate(u *PatientUpdate) error {
	if u.Empty() {
		return invalid("", "update has no fields")
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"name", u.Name},
		{"address", u.Address},
		{"mobile", u.Mobile},
		{"disease", u.Disease},
	} {
		if f.value == nil {
			continue
		}
		if err := requireText(f.name, *f.value); err != nil {
			return err
		}
	}
	if u.TotalCost != nil && *u.TotalCost < 0 {
		return invalid("totalCost", "must not be negative")
	}
	if u.DateOfVisit != nil && u.DateOfVisit.IsZero() {
		return invalid("dateOfVisit", "must be a valid timestamp")
	}
	return nil
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return invalid("amount", "must be a positive integer")
	}
	return nil
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(field, "is required")
	}
	return nil
}
