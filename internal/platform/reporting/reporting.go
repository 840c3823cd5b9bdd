package reporting

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Total number of patients on record",
		SQL:         `SELECT COUNT(*) AS total FROM patient`,
	},
	{
		ID:          "visits-by-month",
		Name:        "Visits by Month",
		Description: "Number of patient visits and billed cost grouped by calendar month",
		SQL: `SELECT to_char(date_trunc('month', date_of_visit), 'YYYY-MM') AS month,
			COUNT(*) AS visits, COALESCE(SUM(total_cost), 0) AS billed
			FROM patient GROUP BY 1 ORDER BY 1 DESC`,
	},
	{
		ID:          "collections-by-month",
		Name:        "Collections by Month",
		Description: "Sum of payments received grouped by calendar month",
		SQL: `SELECT to_char(date_trunc('month', date), 'YYYY-MM') AS month,
			COUNT(*) AS payments, COALESCE(SUM(amount), 0) AS collected
			FROM payment GROUP BY 1 ORDER BY 1 DESC`,
	},
	{
		ID:          "outstanding-balances",
		Name:        "Outstanding Balances",
		Description: "Patients whose payments do not yet cover their total cost",
		SQL: `SELECT p.id, p.name, p.mobile, p.total_cost,
			COALESCE(SUM(y.amount), 0) AS total_paid,
			p.total_cost - COALESCE(SUM(y.amount), 0) AS balance
			FROM patient p LEFT JOIN payment y ON y.patient_id = p.id
			GROUP BY p.id HAVING p.total_cost - COALESCE(SUM(y.amount), 0) > 0
			ORDER BY balance DESC, p.id`,
	},
}

// Handler provides HTTP handlers for the SQL measure API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// RegisterRoutes registers the measure routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL)
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("measure", measure.ID).Msg("measure query failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
	})
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
