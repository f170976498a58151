package symptom

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/:id/symptom-checkins", h.Record)
	api.GET("/patients/:id/symptom-checkins", h.ListByPatient)
}

func (h *Handler) Record(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	var req CheckInRequest
	if err := c.Bind(&req); err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid request body"))
	}
	ci, err := h.svc.Record(c.Request().Context(), patientID, req)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusCreated, ci)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	pg := pagination.FromContext(c)
	checkIns, total, err := h.svc.ListByPatient(c.Request().Context(), patientID,
		c.QueryParam("symptom"), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(checkIns, total, pg.Limit, pg.Offset))
}
