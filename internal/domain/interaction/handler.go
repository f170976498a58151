package interaction

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/renalink/renalink/internal/platform/httperr"
	"github.com/renalink/renalink/pkg/pagination"
)

type Handler struct {
	logs Repository
}

func NewHandler(logs Repository) *Handler {
	return &Handler{logs: logs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/interactions", h.ListByPatient)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.JSON(c, httperr.Validationf("invalid patient id"))
	}
	pg := pagination.FromContext(c)
	items, total, err := h.logs.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.JSON(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
