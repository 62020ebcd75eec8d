package clinical

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/domain/patient"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts notes, treatment plan and risk under a patient.
// Every role may use them, subject to the patient access rule.
func (h *Handler) RegisterRoutes(authed *echo.Group) {
	g := authed.Group("/patients/:id")
	g.GET("/notes", h.ListNotes)
	g.POST("/notes", h.CreateNote)
	g.GET("/treatment-plan", h.GetPlan)
	g.POST("/treatment-plan", h.UpsertPlan)
	g.GET("/risk", h.Risk)
}

func (h *Handler) ListNotes(c echo.Context) error {
	notes, err := h.svc.ListNotes(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) CreateNote(c echo.Context) error {
	var req NoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.CreateNote(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetPlan(c echo.Context) error {
	p, err := h.svc.GetPlan(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpsertPlan(c echo.Context) error {
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.UpsertPlan(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Risk(c echo.Context) error {
	r, err := h.svc.Risk(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func httpError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
	case errors.Is(err, ErrForbidden), errors.Is(err, patient.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
