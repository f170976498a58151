package measurement

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/pkg/pagination"
)

// Trend lookback bounds, in hours.
const (
	defaultTrendHours = 72
	maxTrendHours     = 720
)

// defaultBPWindow is the bp-readings lookback when the caller gives no
// bounds.
const defaultBPWindow = 7 * 24 * time.Hour

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/measurements", h.Ingest)
	api.GET("/patients/:id/measurements", h.ListByPatient)
	api.GET("/patients/:id/measurements/trend", h.Trend)
	api.GET("/patients/:id/bp-readings", h.BPReadings)
}

func (h *Handler) Ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid request body"))
	}
	result, err := h.svc.Ingest(c.Request().Context(), req)
	if err != nil {
		return httperr.JSON(c, err)
	}
	if result.IsDuplicate {
		return c.JSON(http.StatusOK, result)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	from, to, err := timeRange(c)
	if err != nil {
		return httperr.JSON(c, err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID,
		c.QueryParam("type"), from, to, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Trend(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	mtype := c.QueryParam("type")
	if mtype == "" {
		return httperr.JSON(c, httperr.Validationf("type query parameter is required"))
	}
	hours := defaultTrendHours
	if raw := c.QueryParam("hours"); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 1 || hours > maxTrendHours {
			return httperr.JSON(c, httperr.Validationf("hours must be between 1 and %d", maxTrendHours))
		}
	}
	tr, err := h.svc.Trend(c.Request().Context(), patientID, mtype, time.Duration(hours)*time.Hour)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, tr)
}

func (h *Handler) BPReadings(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	from, to, err := timeRange(c)
	if err != nil {
		return httperr.JSON(c, err)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultBPWindow)
	}
	series, err := h.svc.BPReadings(c.Request().Context(), patientID, from, to)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, series)
}

// timeRange parses optional RFC 3339 from/to query parameters.
func timeRange(c echo.Context) (time.Time, time.Time, error) {
	var from, to time.Time
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, httperr.Validationf("from must be RFC 3339")
		}
		from = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, httperr.Validationf("to must be RFC 3339")
		}
		to = t
	}
	return from, to, nil
}
