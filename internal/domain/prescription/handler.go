package prescription

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
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
	authed.POST("/prescriptions", h.Add)
	authed.GET("/prescriptions", h.Active)
	authed.GET("/prescriptions/stats", h.Stats)
	authed.GET("/prescriptions/history", h.History)
	authed.GET("/prescriptions/today", h.Today)
	authed.POST("/prescriptions/take", h.Take)
	authed.DELETE("/prescriptions/:id", h.Delete)
}

type addRequest struct {
	MedicineName    string   `json:"medicineName"`
	Dosage          string   `json:"dosage"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	PillsPerDose    int      `json:"pillsPerDose"`
	DosesPerDay     int      `json:"dosesPerDay"`
	DurationDays    int      `json:"durationDays"`
	InitialQuantity string   `json:"initialQuantity"`
	Instructions    string   `json:"instructions"`
	ScheduleTimes   []string `json:"scheduleTimes"`
}

type takeRequest struct {
	PrescriptionID string `json:"prescriptionId"`
	ScheduleTime   string `json:"scheduleTime"`
}

func (h *Handler) Add(c echo.Context) error {
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// initialQuantity arrives as free text; anything non-numeric means
	// untracked.
	var quantity *int
	if n, err := strconv.Atoi(req.InitialQuantity); err == nil {
		quantity = &n
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.Add(c.Request().Context(), userID, AddInput{
		MedicineName:  req.MedicineName,
		Dosage:        req.Dosage,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		PillsPerDose:  req.PillsPerDose,
		DosesPerDay:   req.DosesPerDay,
		DurationDays:  req.DurationDays,
		Quantity:      quantity,
		Instructions:  req.Instructions,
		ScheduleTimes: req.ScheduleTimes,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":         "Prescription added successfully!",
		"prescription_id": id,
	})
}

func (h *Handler) Active(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.Active(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Prescription not found.")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Prescription deleted."})
}

func (h *Handler) Stats(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	st, err := h.svc.Stats(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) History(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.History(c.Request().Context(), userID, pagination.FromContext(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Today(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	items, err := h.svc.Today(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*TodayDose{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Take(c echo.Context) error {
	var req takeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prescriptionID, err := uuid.Parse(req.PrescriptionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescriptionId")
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	already, err := h.svc.MarkDoseTaken(c.Request().Context(), userID, prescriptionID, req.ScheduleTime)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Prescription not found.")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if already {
		return c.JSON(http.StatusOK, map[string]string{"message": "Dose already marked as taken."})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Dose marked as taken!"})
}
