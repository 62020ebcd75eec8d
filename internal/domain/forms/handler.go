package forms

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(authed *echo.Group) {
	tpl := authed.Group("/templates", auth.RequireRole(auth.RolePsychiatrist))
	tpl.GET("", h.ListTemplates)
	tpl.GET("/:id", h.GetTemplate)
	tpl.POST("", h.CreateTemplate)
	tpl.PUT("/:id", h.UpdateTemplate)

	pf := authed.Group("/patients/:id/forms")
	pf.GET("", h.ListPatientForms)
	pf.POST("", h.CreatePatientForm)
	pf.GET("/:formId", h.GetPatientForm)
	pf.PUT("/:formId", h.UpdatePatientForm)
	pf.DELETE("/:formId", h.DeletePatientForm, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) ListTemplates(c echo.Context) error {
	items, err := h.svc.ListTemplates(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	var req TemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.CreateTemplate(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var patch TemplatePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateTemplate(c.Request().Context(), id, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListPatientForms(c echo.Context) error {
	items, err := h.svc.ListPatientForms(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetPatientForm(c echo.Context) error {
	formID, err := parseID(c, "formId")
	if err != nil {
		return err
	}
	sub, err := h.svc.GetPatientForm(c.Request().Context(), c.Param("id"), formID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) CreatePatientForm(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.CreatePatientForm(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) UpdatePatientForm(c echo.Context) error {
	formID, err := parseID(c, "formId")
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.UpdatePatientForm(c.Request().Context(), c.Param("id"), formID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeletePatientForm(c echo.Context) error {
	formID, err := parseID(c, "formId")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatientForm(c.Request().Context(), c.Param("id"), formID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
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
	case errors.Is(err, ErrTemplateUnavailable):
		return echo.NewHTTPError(http.StatusNotFound, ErrTemplateUnavailable.Error())
	case errors.Is(err, ErrTemplateNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "template not found")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "form not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
