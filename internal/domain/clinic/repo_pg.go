package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func parseUUID(field, id string) (uuid.UUID, error) {
	if err := validateID(field, id); err != nil {
		return uuid.Nil, err
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, invalid(field, "malformed id")
	}
	return u, nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ db queryable }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{db: pool} }

const patientCols = `id, name, address, mobile, disease, total_cost, date_of_visit, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var id uuid.UUID
	err := row.Scan(&id, &p.Name, &p.Address, &p.Mobile, &p.Disease, &p.TotalCost,
		&p.DateOfVisit, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = id.String()
	return &p, nil
}

func (r *patientRepoPG) one(row pgx.Row, op string) (*Patient, error) {
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("patient")
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	id := uuid.New()
	row := r.db.QueryRow(ctx, `
		INSERT INTO patient (id, name, address, mobile, disease, total_cost, date_of_visit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+patientCols,
		id, p.Name, p.Address, p.Mobile, p.Disease, p.TotalCost, p.DateOfVisit)
	created, err := r.one(row, "insert patient")
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	uid, err := parseUUID("id", id)
	if err != nil {
		return nil, err
	}
	return r.one(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, uid), "get patient")
}

func (r *patientRepoPG) Update(ctx context.Context, id string, u *PatientUpdate) (*Patient, error) {
	uid, err := parseUUID("id", id)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `
		UPDATE patient SET
			name = COALESCE($2, name),
			address = COALESCE($3, address),
			mobile = COALESCE($4, mobile),
			disease = COALESCE($5, disease),
			total_cost = COALESCE($6, total_cost),
			date_of_visit = COALESCE($7, date_of_visit),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		uid, u.Name, u.Address, u.Mobile, u.Disease, u.TotalCost, u.DateOfVisit)
	return r.one(row, "update patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) (*Patient, error) {
	uid, err := parseUUID("id", id)
	if err != nil {
		return nil, err
	}
	return r.one(r.db.QueryRow(ctx, `DELETE FROM patient WHERE id = $1 RETURNING `+patientCols, uid), "delete patient")
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, persistence("count patients", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC, id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, persistence("list patients", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, persistence("scan patient", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistence("list patients", err)
	}
	return items, total, nil
}

func (r *patientRepoPG) All(ctx context.Context) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, persistence("list patients", err)
	}
	defer rows.Close()
	items := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, persistence("scan patient", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list patients", err)
	}
	return items, nil
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		return 0, persistence("count patients", err)
	}
	return n, nil
}

func (r *patientRepoPG) Aggregate(ctx context.Context, vr *VisitRange) ([]PatientWithPayments, error) {
	sql := `SELECT ` + patientCols + ` FROM patient`
	var args []interface{}
	if vr != nil {
		sql += ` WHERE date_of_visit >= $1 AND date_of_visit < $2`
		args = append(args, vr.From, vr.To)
	}
	sql += ` ORDER BY date_of_visit DESC, id ASC`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistence("aggregate patients", err)
	}
	defer rows.Close()

	items := []PatientWithPayments{}
	index := map[string]int{}
	var ids []uuid.UUID
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, persistence("scan patient", err)
		}
		index[p.ID] = len(items)
		ids = append(ids, uuid.MustParse(p.ID))
		items = append(items, PatientWithPayments{Patient: *p, Payments: []Payment{}})
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("aggregate patients", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	// One lookup for every matched patient.
	prow, err := r.db.Query(ctx, `SELECT `+paymentCols+` FROM payment WHERE patient_id = ANY($1) ORDER BY date DESC, id ASC`, ids)
	if err != nil {
		return nil, persistence("aggregate payments", err)
	}
	defer prow.Close()
	for prow.Next() {
		pay, err := scanPayment(prow)
		if err != nil {
			return nil, persistence("scan payment", err)
		}
		if i, ok := index[pay.PatientID]; ok {
			items[i].Payments = append(items[i].Payments, *pay)
		}
	}
	if err := prow.Err(); err != nil {
		return nil, persistence("aggregate payments", err)
	}
	return items, nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ db queryable }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{db: pool} }

const paymentCols = `id, patient_id, amount, date, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var id, patientID uuid.UUID
	if err := row.Scan(&id, &patientID, &p.Amount, &p.Date, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.String()
	p.PatientID = patientID.String()
	return &p, nil
}

func (r *paymentRepoPG) one(row pgx.Row, op string) (*Payment, error) {
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("payment")
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	patientID, err := parseUUID("patientId", p.PatientID)
	if err != nil {
		return err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO payment (id, patient_id, amount, date)
		VALUES ($1, $2, $3, $4)
		RETURNING `+paymentCols,
		uuid.New(), patientID, p.Amount, p.Date)
	created, err := r.one(row, "insert payment")
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id string) (*Payment, error) {
	uid, err := parseUUID("id", id)
	if err != nil {
		return nil, err
	}
	return r.one(r.db.QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, uid), "get payment")
}

func (r *paymentRepoPG) Update(ctx context.Context, id string, amount int64, date time.Time) (*Payment, error) {
	uid, err := parseUUID("id", id)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `
		UPDATE payment SET amount = $2, date = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+paymentCols,
		uid, amount, date)
	return r.one(row, "update payment")
}

func (r *paymentRepoPG) ListByPatient(ctx context.Context, patientID string) ([]Payment, error) {
	uid, err := parseUUID("patientId", patientID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+paymentCols+` FROM payment WHERE patient_id = $1 ORDER BY date DESC, id ASC`, uid)
	if err != nil {
		return nil, persistence("list payments", err)
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, persistence("scan payment", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list payments", err)
	}
	return items, nil
}
