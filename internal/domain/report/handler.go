package report

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/auth"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"

	mimePDF = "application/pdf"
	mimeCSV = "text/csv; charset=utf-8"
)

type Handler struct {
	asm *Assembler
}

func NewHandler(asm *Assembler) *Handler {
	return &Handler{asm: asm}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleStaff))
	g.GET("/reports/monthly", h.MonthlyReport)
	g.GET("/patients/:id/statement", h.Statement)
	g.GET("/dashboard", h.Dashboard)
}

func format(c echo.Context) (string, error) {
	f := c.QueryParam("format")
	switch f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatPDF:
		return f, nil
	}
	return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported format %q", f))
}

func attachment(c echo.Context, name, mime string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, mime, body)
}

// MonthlyReport serves the report for ?month=&year= as JSON, CSV or PDF.
func (h *Handler) MonthlyReport(c echo.Context) error {
	out, err := format(c)
	if err != nil {
		return err
	}
	f, err := clinic.ParseMonthFilter(c.QueryParam("month"), c.QueryParam("year"))
	if err != nil {
		return clinic.HTTPError(c, err)
	}
	if f == nil {
		return clinic.HTTPError(c, fmt.Errorf("%w: month and year are required", clinic.ErrInvalidFilter))
	}

	r, err := h.asm.BuildMonthlyReport(c.Request().Context(), f.Month, f.Year)
	if err != nil {
		return clinic.HTTPError(c, err)
	}

	var buf bytes.Buffer
	switch out {
	case FormatCSV:
		if err := r.WriteCSV(&buf); err != nil {
			return clinic.HTTPError(c, err)
		}
		return attachment(c, r.FileName()+".csv", mimeCSV, buf.Bytes())
	case FormatPDF:
		if err := r.WritePDF(&buf); err != nil {
			return clinic.HTTPError(c, err)
		}
		return attachment(c, r.FileName()+".pdf", mimePDF, buf.Bytes())
	}
	return c.JSON(http.StatusOK, r)
}

// Statement serves one patient's printable statement as JSON or PDF.
func (h *Handler) Statement(c echo.Context) error {
	out, err := format(c)
	if err != nil {
		return err
	}
	s, err := h.asm.BuildStatement(c.Request().Context(), c.Param("id"))
	if err != nil {
		return clinic.HTTPError(c, err)
	}

	var buf bytes.Buffer
	switch out {
	case FormatCSV:
		if err := s.Table(h.asm.Location()).WriteCSV(&buf); err != nil {
			return clinic.HTTPError(c, err)
		}
		return attachment(c, "Statement_"+s.Patient.ID+".csv", mimeCSV, buf.Bytes())
	case FormatPDF:
		if err := s.Table(h.asm.Location()).WritePDF(&buf); err != nil {
			return clinic.HTTPError(c, err)
		}
		return attachment(c, "Statement_"+s.Patient.ID+".pdf", mimePDF, buf.Bytes())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Dashboard(c echo.Context) error {
	d, err := h.asm.BuildDashboard(c.Request().Context())
	if err != nil {
		return clinic.HTTPError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}
