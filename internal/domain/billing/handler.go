package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/intake/internal/platform/auth"
	"github.com/clinicdesk/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	read.GET("/billing-codes", h.ListCodes)
	read.GET("/billing-codes/:id", h.GetCode)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/billing-codes", h.CreateCode)
	write.PUT("/billing-codes/:id", h.UpdateCode)
	write.DELETE("/billing-codes/:id", h.DeleteCode)
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "billing code not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateCode(c echo.Context) error {
	code := Code{Active: true}
	if err := c.Bind(&code); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCode(c.Request().Context(), &code); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, code)
}

func (h *Handler) GetCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	code, err := h.svc.GetCode(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) ListCodes(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	items, total, err := h.svc.ListCodes(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var code Code
	if err := c.Bind(&code); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	code.ID = id
	if err := h.svc.UpdateCode(c.Request().Context(), &code); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) DeleteCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteCode(c.Request().Context(), id); err != nil {
		return errorStatus(err)
	}
	return c.NoContent(http.StatusNoContent)
}
