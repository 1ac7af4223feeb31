package pharmacy

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctors := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/prescriptions", h.Create)
	doctors.POST("/prescriptions/:id/send", h.SendToPharmacy)
	doctors.POST("/prescriptions/:id/cancel", h.Cancel)

	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RolePatient))
	read.GET("/prescriptions/:id", h.Get)
	read.GET("/patients/:id/prescriptions", h.ListByPatient)

	pharmacists := api.Group("", auth.RequireRole(auth.RolePharmacist))
	pharmacists.GET("/pharmacy/queue", h.Queue)
	pharmacists.POST("/prescriptions/:id/dispense", h.Dispense)
}

func (h *Handler) Create(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SendToPharmacy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.SendToPharmacy(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Queue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Queue(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Dispense(c echo.Context) error {
	pharmacistID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Dispense(c.Request().Context(), pharmacistID, id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, p)
}
