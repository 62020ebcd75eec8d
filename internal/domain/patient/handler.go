package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(authed *echo.Group) {
	authed.GET("/patients", h.List)
	authed.GET("/patients/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	caller, _ := auth.PrincipalFromContext(c.Request().Context())
	items, err := h.svc.ListFor(c.Request().Context(), caller)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	caller, _ := auth.PrincipalFromContext(c.Request().Context())
	p, err := h.svc.ResolveFor(c.Request().Context(), caller, c.Param("id"))
	switch {
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case err != nil:
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}
