package availability

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/providers/:id/availability", h.GetAvailability)
	api.GET("/providers/:id/schedule", h.GetSchedule)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleProvider))
	writeGroup.PUT("/providers/:id/schedule", h.UpdateSchedule)
	writeGroup.PATCH("/providers/:id/status", h.UpdateStatus)
	writeGroup.DELETE("/providers/:id/schedule", h.DeactivateSchedule)
}

// GetAvailability handles GET /providers/:id/availability?date=YYYY-MM-DD.
func (h *Handler) GetAvailability(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}

	// The requester's own locks are annotated held_by_you.
	var requester uuid.UUID
	if ident, ok := auth.IdentityFrom(c.Request().Context()); ok {
		requester, _ = uuid.Parse(ident.SubjectID)
	}

	slots, err := h.svc.Resolve(c.Request().Context(), providerID, date, requester)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider_id": providerID,
		"date":        date,
		"slots":       slots,
	})
}

func (h *Handler) GetSchedule(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	p, err := h.svc.GetProfile(c.Request().Context(), providerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

type updateScheduleRequest struct {
	Days        [7]DaySchedule `json:"days"`
	SlotMinutes int            `json:"slot_minutes"`
}

// UpdateSchedule handles PUT /providers/:id/schedule. Providers may only
// edit their own schedule; admins may edit anyone's.
func (h *Handler) UpdateSchedule(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	if err := requireSelfOrAdmin(c, providerID); err != nil {
		return err
	}

	var req updateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.UpdateSchedule(c.Request().Context(), providerID, req.Days, req.SlotMinutes)
	if err != nil {
		if errors.Is(err, ErrScheduleInvalid) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

type updateStatusRequest struct {
	Online bool `json:"online"`
}

// UpdateStatus handles PATCH /providers/:id/status.
func (h *Handler) UpdateStatus(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	if err := requireSelfOrAdmin(c, providerID); err != nil {
		return err
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.svc.SetOnline(c.Request().Context(), providerID, req.Online)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// DeactivateSchedule handles DELETE /providers/:id/schedule. The profile
// is soft-disabled, not removed.
func (h *Handler) DeactivateSchedule(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	if err := requireSelfOrAdmin(c, providerID); err != nil {
		return err
	}
	if err := h.svc.Deactivate(c.Request().Context(), providerID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func requireSelfOrAdmin(c echo.Context, providerID uuid.UUID) error {
	ident, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	if ident.Role == auth.RoleAdmin || ident.SubjectID == providerID.String() {
		return nil
	}
	return echo.NewHTTPError(http.StatusForbidden, "cannot modify another provider's schedule")
}
