package booking

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	coordinator *Coordinator
}

func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patients := api.Group("", auth.RequireRole(auth.RolePatient))
	patients.POST("/appointments", h.Book)
	patients.PUT("/appointments/:id", h.Update)
	patients.POST("/appointments/:id/cancel", h.Cancel)

	read := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleStaff))
	read.GET("/appointments/:id", h.Get)
	read.GET("/patients/:id/appointments", h.ListByPatient)
	read.GET("/doctors/:id/appointments", h.ListByDoctor)
}

func (h *Handler) Book(c echo.Context) error {
	patientID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.coordinator.Book(c.Request().Context(), patientID, req)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.coordinator.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	actorID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.coordinator.Update(c.Request().Context(), actorID, id, req)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	actorID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.coordinator.Cancel(c.Request().Context(), actorID, id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.coordinator.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	from := time.Now().AddDate(0, -1, 0)
	to := time.Now().AddDate(0, 3, 0)
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
		from = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
		to = t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.coordinator.ListByDoctor(c.Request().Context(), doctorID, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
