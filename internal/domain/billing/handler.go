package billing

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/httperr"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/billing-summary", h.Summary)
	api.GET("/patients/:id/billing-summary/export", h.Export)
}

func (h *Handler) Summary(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}

	sum, err := h.svc.Summary(c.Request().Context(), patientID, c.QueryParam("month"))
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Export(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}

	sum, err := h.svc.Summary(c.Request().Context(), patientID, c.QueryParam("month"))
	if err != nil {
		return httperr.JSON(c, err)
	}
	data, err := BuildWorkbook(sum)
	if err != nil {
		return httperr.JSON(c, httperr.Wrap(httperr.KindInternal, "build workbook", err))
	}

	filename := fmt.Sprintf("billing-%s-%s.xlsx", sum.PatientID, sum.Month)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
