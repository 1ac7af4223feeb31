package inventory

import (
	"net/http"
	"strconv"
	"time"

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
	read := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RoleDoctor, auth.RoleStaff))
	read.GET("/products", h.ListProducts)
	read.GET("/products/:id", h.GetProduct)
	read.GET("/products/:id/ledger", h.Ledger)
	read.GET("/inventory/reorder-report", h.ReorderReport)
	read.GET("/inventory/expiring", h.ExpiringBatches)

	write := api.Group("", auth.RequireRole(auth.RolePharmacist))
	write.POST("/products", h.CreateProduct)
	write.DELETE("/products/:id", h.DeactivateProduct)
	write.POST("/inventory/receive", h.ReceiveStock)
	write.POST("/inventory/adjust", h.AdjustStock)
	write.POST("/inventory/return", h.ReturnStock)
}

func (h *Handler) CreateProduct(c echo.Context) error {
	var p Product
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateProduct(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProduct(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProduct(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivateProduct(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateProduct(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListProducts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProducts(c.Request().Context(), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ReceiveStock(c echo.Context) error {
	actorID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req ReceiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	batch, err := h.svc.ReceiveStock(c.Request().Context(), actorID, req)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusCreated, batch)
}

func (h *Handler) AdjustStock(c echo.Context) error {
	actorID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req struct {
		ProductID uuid.UUID `json:"product_id"`
		Delta     int       `json:"delta"`
		Note      string    `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AdjustStock(c.Request().Context(), actorID, req.ProductID, req.Delta, req.Note); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReturnStock(c echo.Context) error {
	actorID, ok := auth.UserID(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	var req struct {
		ProductID   uuid.UUID `json:"product_id"`
		BatchNumber string    `json:"batch_number"`
		Quantity    int       `json:"quantity"`
		Note        string    `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ReturnStock(c.Request().Context(), actorID, req.ProductID, req.BatchNumber, req.Quantity, req.Note); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReorderReport(c echo.Context) error {
	items, err := h.svc.ReorderReport(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ExpiringBatches(c echo.Context) error {
	days := 30
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid days")
		}
		days = n
	}
	items, err := h.svc.ExpiringBatches(c.Request().Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Ledger(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Ledger(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.Message(err))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
