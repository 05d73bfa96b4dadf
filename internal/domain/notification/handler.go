package notification

import (
	"errors"
	"net/http"

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
	read.GET("/email-templates", h.ListTemplates)
	read.GET("/email-templates/placeholders", h.Placeholders)
	read.GET("/email-templates/:id", h.GetTemplate)
	read.POST("/email-templates/:id/preview", h.Preview)
	read.GET("/scheduled-emails", h.ListScheduled)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/email-templates", h.CreateTemplate)
	write.PUT("/email-templates/:id", h.UpdateTemplate)
	write.DELETE("/email-templates/:id", h.DeleteTemplate)
	write.POST("/notification-events", h.PublishEvent)
}

func httpError(err error) error {
	var valErr *ValidationError
	switch {
	case errors.As(err, &valErr):
		return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Template Handlers --

func (h *Handler) CreateTemplate(c echo.Context) error {
	t := Template{Active: true}
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTemplate(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateTemplate(c.Request().Context(), id, &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTemplate(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTemplates(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Placeholders(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Catalog())
}

type previewRequest struct {
	AppointmentID *uuid.UUID `json:"appointment_id"`
}

func (h *Handler) Preview(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Preview(c.Request().Context(), id, req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Event and Outbox Handlers --

func (h *Handler) PublishEvent(c echo.Context) error {
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.HandleEvent(c.Request().Context(), ev)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]int{"queued": n})
}

func (h *Handler) ListScheduled(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", EmailPending, EmailSent, EmailFailed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListScheduled(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
