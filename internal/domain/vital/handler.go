package vital

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(authed *echo.Group) {
	authed.GET("/vitals", h.List)
	authed.POST("/vitals", h.Log)
}

type logRequest struct {
	Type  string     `json:"type"`
	Value string     `json:"value"`
	Date  *time.Time `json:"date"`
}

func (h *Handler) Log(c echo.Context) error {
	var req logRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	v, err := h.svc.Log(c.Request().Context(), userID, req.Type, req.Value, req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) List(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.List(c.Request().Context(), userID, pagination.FromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Vital{}
	}
	return c.JSON(http.StatusOK, items)
}
