package clinic

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
	staff := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/patients/:id", h.GetPatient)
	staff.POST("/patients", h.CreatePatient)
	staff.PUT("/patients/:id", h.UpdatePatient)
	staff.GET("/patients/:id/appointments", h.ListPatientAppointments)
	staff.GET("/examinations", h.ListExaminations)
	staff.GET("/examinations/:id", h.GetExamination)
	staff.GET("/locations", h.ListLocations)
	staff.GET("/locations/:id", h.GetLocation)
	staff.GET("/devices", h.ListDevices)
	staff.GET("/devices/:id", h.GetDevice)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.POST("/appointments", h.CreateAppointment)
	staff.PUT("/appointments/:id", h.UpdateAppointment)
	staff.POST("/appointments/:id/cancel", h.CancelAppointment)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/examinations", h.CreateExamination)
	admin.POST("/locations", h.CreateLocation)
	admin.POST("/devices", h.CreateDevice)
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRecord):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAppointmentCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
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

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientAppointments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointmentsByPatient(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Examination Handlers --

func (h *Handler) CreateExamination(c echo.Context) error {
	var e Examination
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateExamination(c.Request().Context(), &e); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetExamination(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetExamination(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListExaminations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListExaminations(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Location Handlers --

func (h *Handler) CreateLocation(c echo.Context) error {
	var l Location
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateLocation(c.Request().Context(), &l); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLocation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLocation(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLocations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLocations(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Device Handlers --

func (h *Handler) CreateDevice(c echo.Context) error {
	var d Device
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDevice(c.Request().Context(), &d); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDevice(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDevice(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDevices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDevices(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), &a); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var upd AppointmentUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, &upd)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, a)
}
