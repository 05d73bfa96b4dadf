package billingform

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
	read.GET("/billing-forms", h.ListForms)
	read.GET("/billing-forms/:id", h.GetForm)
	read.GET("/billing-forms/:id/completions", h.ListCompletions)
	read.POST("/billing-forms/:id/complete", h.Complete)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/billing-forms", h.CreateForm)
	write.PUT("/billing-forms/:id", h.UpdateForm)
	write.DELETE("/billing-forms/:id", h.DeleteForm)
	write.POST("/billing-forms/:id/questions", h.AddQuestion)
	write.POST("/billing-forms/:id/edits", h.ApplyEdits)
}

// httpError hides dependency details from the client; the service has
// already logged them.
func httpError(err error) error {
	var valErr *ValidationError
	switch {
	case errors.As(err, &valErr):
		return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
	case errors.Is(err, ErrInconsistentDependency), errors.Is(err, ErrForwardDependency):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "failed to save billing form")
	case errors.Is(err, ErrFixedOptions), errors.Is(err, ErrLastOption),
		errors.Is(err, ErrUnknownQuestionType), errors.Is(err, ErrIndexOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "billing form not found")
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

func (h *Handler) CreateForm(c echo.Context) error {
	var draft FormDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.CreateForm(c.Request().Context(), &draft)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.GetForm(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListForms(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForms(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var draft FormDraft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.UpdateForm(c.Request().Context(), id, &draft)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteForm(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type addQuestionRequest struct {
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Required bool         `json:"required"`
}

func (h *Handler) AddQuestion(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req addQuestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.AddQuestion(c.Request().Context(), id, req.Type, req.Text, req.Required)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

type editsRequest struct {
	Edits []Edit `json:"edits"`
}

func (h *Handler) ApplyEdits(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req editsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Edits) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "edits are required")
	}
	f, err := h.svc.ApplyEdits(c.Request().Context(), id, req.Edits)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CompletionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	completion, err := h.svc.Complete(c.Request().Context(), id, &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, completion)
}

func (h *Handler) ListCompletions(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCompletions(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
