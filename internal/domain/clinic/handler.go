package clinic

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc       *Service
	batchSize int
}

// NewHandler returns the patient and payment HTTP handler. batchSize is the
// number of search results revealed per batch.
func NewHandler(svc *Service, batchSize int) *Handler {
	if batchSize <= 0 {
		batchSize = pagination.DefaultLimit
	}
	return &Handler{svc: svc, batchSize: batchSize}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleStaff))

	g.POST("/patients", h.CreatePatient)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/search", h.SearchPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.PUT("/patients/:id", h.UpdatePatient)
	g.PATCH("/patients/:id", h.UpdatePatient)
	g.DELETE("/patients/:id", h.DeletePatient)
	g.GET("/patients/:id/balance", h.GetBalance)

	g.POST("/payments", h.CreatePayment)
	g.GET("/payments", h.ListPayments)
	g.GET("/payments/:id", h.GetPayment)
	g.PUT("/payments/:id", h.UpdatePayment)
}

// HTTPError maps a service error onto an HTTP error. Persistence and unknown
// failures are logged through the request logger and hidden from the client.
func HTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).
		Str("path", c.Path()).
		Msg("clinic store failure")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

func bindError(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return bindError(err)
	}
	p.ID = ""
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListPatients serves the plain paginated list, or the aggregated view with
// payments when month/year or include=payments is given.
func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	month, year := c.QueryParam("month"), c.QueryParam("year")
	if month != "" || year != "" || c.QueryParam("include") == "payments" {
		f, err := ParseMonthFilter(month, year)
		if err != nil {
			return HTTPError(c, err)
		}
		items, err := h.svc.AggregatePatients(ctx, f)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(http.StatusOK, items)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(ctx, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(c, err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// SearchPatients filters the full current patient set and reveals the first
// batches*batchSize matches.
func (h *Handler) SearchPatients(c echo.Context) error {
	batches := 1
	if raw := c.QueryParam("batches"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "batches must be a positive integer")
		}
		batches = n
	}

	// The query is matched as typed; surrounding spaces are part of it.
	matches, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return HTTPError(c, err)
	}
	total := len(matches)
	w := pagination.NewWindow(h.batchSize)
	w.Advance(batches, total)
	visible := matches[:w.Visible(total)]
	return c.JSON(http.StatusOK, &pagination.BatchResponse{
		Data:      visible,
		Total:     total,
		Visible:   len(visible),
		BatchSize: w.BatchSize(),
		HasMore:   w.HasMore(total),
	})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var u PatientUpdate
	if err := c.Bind(&u); err != nil {
		return bindError(err)
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), c.Param("id"), &u)
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if _, err := h.svc.DeletePatient(c.Request().Context(), c.Param("id")); err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}

func (h *Handler) GetBalance(c echo.Context) error {
	pw, bal, err := h.svc.GetBalance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patientId": pw.ID,
		"totalCost": pw.TotalCost,
		"totalPaid": bal.TotalPaid,
		"balance":   bal.Balance,
	})
}

// -- Payment Handlers --

func (h *Handler) CreatePayment(c echo.Context) error {
	var p Payment
	if err := c.Bind(&p); err != nil {
		return bindError(err)
	}
	p.ID = ""
	if err := h.svc.CreatePayment(c.Request().Context(), &p); err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayment(c echo.Context) error {
	p, err := h.svc.GetPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPayments(c echo.Context) error {
	items, err := h.svc.ListPayments(c.Request().Context(), c.QueryParam("patientId"))
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdatePayment(c echo.Context) error {
	var u PaymentUpdate
	if err := c.Bind(&u); err != nil {
		return bindError(err)
	}
	p, err := h.svc.UpdatePayment(c.Request().Context(), c.Param("id"), &u)
	if err != nil {
		return HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
