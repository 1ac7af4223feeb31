package doctor

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
	api.GET("/doctors", h.List)
	api.GET("/doctors/:id", h.Get)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors", h.Create)
	admin.POST("/doctors/:id/approve", h.Approve)

	manage := api.Group("", auth.RequireRole(auth.RoleDoctor))
	manage.PUT("/doctors/:id", h.Update)
	manage.PUT("/doctors/:id/slots", h.SetAvailability)
	manage.POST("/doctors/:id/slots", h.AddSlot)
	manage.DELETE("/doctors/:id/slots/:slotID", h.RemoveSlot)
}

func (h *Handler) Create(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	approvedOnly := c.QueryParam("approved") != "false"
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("department"), approvedOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.Update(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Approve(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Slots []WeeklySlot `json:"slots"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetAvailability(c.Request().Context(), id, body.Slots); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var slot WeeklySlot
	if err := c.Bind(&slot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	added, err := h.svc.AddSlot(c.Request().Context(), id, slot)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, added)
}

func (h *Handler) RemoveSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	slotID, err := uuid.Parse(c.Param("slotID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slot id")
	}
	if err := h.svc.RemoveSlot(c.Request().Context(), id, slotID); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}
