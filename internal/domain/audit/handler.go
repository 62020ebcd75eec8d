package audit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/platform/auth"
	"github.com/ehr/mhemr/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/audit", auth.RequireRole(auth.RoleAdmin))
	g.GET("/logs", h.ListLogs)
	g.GET("/stats", h.GetStats)
}

func (h *Handler) ListLogs(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	q := Query{
		Action:   strings.TrimSpace(c.QueryParam("action")),
		Status:   strings.TrimSpace(c.QueryParam("status")),
		DateFrom: c.QueryParam("date_from"),
		DateTo:   c.QueryParam("date_to"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.svc.Failure(ctx, ActionAuditLogs, "audit/logs", "user_id must be an integer")
			return echo.NewHTTPError(http.StatusBadRequest, "user_id must be an integer")
		}
		q.UserID = uid
	}

	entries, total, err := h.svc.List(ctx, q)
	if err != nil {
		h.svc.Failure(ctx, ActionAuditLogs, "audit/logs", err.Error())
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.svc.Success(ctx, ActionAuditLogs, "audit/logs", "")
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}

func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	st, err := h.svc.Stats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.svc.Success(ctx, ActionAuditStats, "audit/stats", "")
	return c.JSON(http.StatusOK, st)
}
