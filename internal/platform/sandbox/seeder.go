// Package sandbox generates synthetic clinic data for demo and development
// environments: patients visiting over a fixed summer window, each with a
// few partial payments.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/clinic"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	PatientCount        int       `json:"patientCount"`
	MinPaymentsPerVisit int       `json:"minPayments"`
	MaxPaymentsPerVisit int       `json:"maxPayments"`
	MinCost             int64     `json:"minCost"`
	MaxCost             int64     `json:"maxCost"`
	MinPayment          int64     `json:"minPayment"`
	MaxPayment          int64     `json:"maxPayment"`
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	// Seed makes runs reproducible. Zero picks a random seed.
	Seed uint64 `json:"seed"`
}

// DefaultSeedConfig returns 100 patients visiting June to August 2025.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:        100,
		MinPaymentsPerVisit: 1,
		MaxPaymentsPerVisit: 3,
		MinCost:             1000,
		MaxCost:             10000,
		MinPayment:          500,
		MaxPayment:          3000,
		From:                time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		To:                  time.Date(2025, time.August, 31, 0, 0, 0, 0, time.UTC),
	}
}

// withDefaults fills zero fields from DefaultSeedConfig.
func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	if c.PatientCount == 0 {
		c.PatientCount = d.PatientCount
	}
	if c.MinPaymentsPerVisit == 0 {
		c.MinPaymentsPerVisit = d.MinPaymentsPerVisit
	}
	if c.MaxPaymentsPerVisit == 0 {
		c.MaxPaymentsPerVisit = d.MaxPaymentsPerVisit
	}
	if c.MinCost == 0 {
		c.MinCost = d.MinCost
	}
	if c.MaxCost == 0 {
		c.MaxCost = d.MaxCost
	}
	if c.MinPayment == 0 {
		c.MinPayment = d.MinPayment
	}
	if c.MaxPayment == 0 {
		c.MaxPayment = d.MaxPayment
	}
	if c.From.IsZero() {
		c.From = d.From
	}
	if c.To.IsZero() {
		c.To = d.To
	}
	return c
}

func (c SeedConfig) validate() error {
	switch {
	case c.PatientCount < 0 || c.PatientCount > 10000:
		return fmt.Errorf("patientCount must be between 0 and 10000")
	case c.MinPaymentsPerVisit > c.MaxPaymentsPerVisit:
		return fmt.Errorf("minPayments must not exceed maxPayments")
	case c.MinCost > c.MaxCost || c.MinCost < 0:
		return fmt.Errorf("cost range is invalid")
	case c.MinPayment > c.MaxPayment || c.MinPayment <= 0:
		return fmt.Errorf("payment range is invalid")
	case !c.From.Before(c.To):
		return fmt.Errorf("from must be before to")
	}
	return nil
}

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Patients int           `json:"patients"`
	Payments int           `json:"payments"`
	Duration time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces patients and payments from a gofakeit source.
type DataGenerator struct {
	faker *gofakeit.Faker
	cfg   SeedConfig
}

func NewDataGenerator(cfg SeedConfig) *DataGenerator {
	return &DataGenerator{faker: gofakeit.New(cfg.Seed), cfg: cfg}
}

func (g *DataGenerator) int64Range(min, max int64) int64 {
	return int64(g.faker.IntRange(int(min), int(max)))
}

// Mobile returns a ten digit number starting with 6, 7, 8 or 9.
func (g *DataGenerator) Mobile() string {
	first := g.faker.RandomString([]string{"6", "7", "8", "9"})
	return first + g.faker.Numerify("#########")
}

func (g *DataGenerator) GeneratePatient() clinic.Patient {
	return clinic.Patient{
		Name:        g.faker.Name(),
		Address:     g.faker.Street(),
		Mobile:      g.Mobile(),
		Disease:     g.faker.Word(),
		TotalCost:   g.int64Range(g.cfg.MinCost, g.cfg.MaxCost),
		DateOfVisit: g.faker.DateRange(g.cfg.From, g.cfg.To),
	}
}

// GeneratePayments draws installments for p dated between its visit and the
// end of the window. Generation stops early once the total cost is covered.
func (g *DataGenerator) GeneratePayments(p clinic.Patient) []clinic.Payment {
	n := g.faker.IntRange(g.cfg.MinPaymentsPerVisit, g.cfg.MaxPaymentsPerVisit)
	out := make([]clinic.Payment, 0, n)
	var paid int64
	for i := 0; i < n; i++ {
		amount := g.int64Range(g.cfg.MinPayment, g.cfg.MaxPayment)
		paid += amount
		date := p.DateOfVisit
		if date.Before(g.cfg.To) {
			date = g.faker.DateRange(p.DateOfVisit, g.cfg.To)
		}
		out = append(out, clinic.Payment{PatientID: p.ID, Amount: amount, Date: date})
		if paid >= p.TotalCost {
			break
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder writes generated data through the clinic service so every record
// passes the same validation as API input.
type Seeder struct {
	svc    *clinic.Service
	logger zerolog.Logger
}

func NewSeeder(svc *clinic.Service, logger zerolog.Logger) *Seeder {
	return &Seeder{svc: svc, logger: logger}
}

func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", clinic.ErrValidation, err)
	}

	start := time.Now()
	gen := NewDataGenerator(cfg)
	res := &SeedResult{}
	for i := 0; i < cfg.PatientCount; i++ {
		p := gen.GeneratePatient()
		if err := s.svc.CreatePatient(ctx, &p); err != nil {
			return res, fmt.Errorf("seed patient %d: %w", i+1, err)
		}
		res.Patients++
		for _, pay := range gen.GeneratePayments(p) {
			pay := pay
			if err := s.svc.CreatePayment(ctx, &pay); err != nil {
				return res, fmt.Errorf("seed payment for patient %d: %w", i+1, err)
			}
			res.Payments++
		}
	}
	res.Duration = time.Since(start)

	s.logger.Info().
		Int("patients", res.Patients).
		Int("payments", res.Payments).
		Dur("duration", res.Duration).
		Msg("demo data seeded")
	return res, nil
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// SeedHandler exposes the seeder for development environments.
type SeedHandler struct {
	mu     sync.Mutex
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cfg SeedConfig
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return clinic.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "Seeded successfully!",
		"patients": result.Patients,
		"payments": result.Payments,
	})
}
