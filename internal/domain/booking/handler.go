package booking

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/slots/lock", h.LockSlot)
	api.POST("/slots/release", h.ReleaseSlot)
	api.POST("/payments/intent", h.StartPayment)

	api.POST("/bookings", h.ConfirmBooking)
	api.GET("/bookings", h.ListBookings)
	api.GET("/bookings/:id", h.GetBooking)
	api.POST("/bookings/:id/cancel", h.CancelBooking)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider))
	providerGroup.POST("/bookings/:id/complete", h.CompleteBooking)
	providerGroup.POST("/bookings/:id/no-show", h.MarkNoShow)
}

type slotRequest struct {
	ProviderID uuid.UUID              `json:"provider_id"`
	Date       string                 `json:"date"`
	Start      availability.TimeOfDay `json:"start"`
}

// LockSlot handles POST /slots/lock. The authenticated subject becomes
// the lock holder.
func (h *Handler) LockSlot(c echo.Context) error {
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	lock, err := h.svc.AcquireSlot(c.Request().Context(), req.ProviderID, req.Date, req.Start, patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"provider_id": req.ProviderID,
		"date":        req.Date,
		"start":       req.Start,
		"expires_at":  lock.ExpiresAt,
	})
}

// ReleaseSlot handles POST /slots/release. Releasing a slot not held by
// the caller succeeds silently.
func (h *Handler) ReleaseSlot(c echo.Context) error {
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	if err := h.svc.ReleaseSlot(c.Request().Context(), req.ProviderID, req.Date, req.Start, patientID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type paymentIntentRequest struct {
	ProviderID       uuid.UUID              `json:"provider_id"`
	Date             string                 `json:"date"`
	Start            availability.TimeOfDay `json:"start"`
	ConsultationType ConsultationType       `json:"consultation_type"`
}

// StartPayment handles POST /payments/intent for a locked slot.
func (h *Handler) StartPayment(c echo.Context) error {
	var req paymentIntentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	intent, err := h.svc.StartPayment(c.Request().Context(), req.ProviderID, req.Date, req.Start, patientID, req.ConsultationType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, intent)
}

type confirmRequest struct {
	ProviderID       uuid.UUID              `json:"provider_id"`
	Date             string                 `json:"date"`
	Start            availability.TimeOfDay `json:"start"`
	ConsultationType ConsultationType       `json:"consultation_type"`
	PaymentIntent    string                 `json:"payment_intent"`
}

// ConfirmBooking handles POST /bookings: the final step of the flow, only
// valid while the caller holds the slot lock.
func (h *Handler) ConfirmBooking(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := callerID(c)
	if err != nil {
		return err
	}

	b, err := h.svc.Confirm(c.Request().Context(), ConfirmRequest{
		ProviderID:       req.ProviderID,
		PatientID:        patientID,
		Date:             req.Date,
		Start:            req.Start,
		ConsultationType: req.ConsultationType,
		PaymentIntent:    req.PaymentIntent,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

// ListBookings handles GET /bookings with either ?patient_id= or
// ?provider_id=&date=.
func (h *Handler) ListBookings(c echo.Context) error {
	ident, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	page := pagination.FromContext(c)
	ctx := c.Request().Context()

	if raw := c.QueryParam("patient_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
		}
		items, total, err := h.svc.ListForPatient(ctx, patientID, ident, page)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
	}

	if raw := c.QueryParam("provider_id"); raw != "" {
		providerID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
		}
		items, total, err := h.svc.ListForProviderDay(ctx, providerID, c.QueryParam("date"), ident, page)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
	}

	return echo.NewHTTPError(http.StatusBadRequest, "patient_id or provider_id is required")
}

func (h *Handler) GetBooking(c echo.Context) error {
	return h.withBooking(c, func(c echo.Context, id uuid.UUID, ident auth.Identity) error {
		b, err := h.svc.Get(c.Request().Context(), id, ident)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, b)
	})
}

func (h *Handler) CancelBooking(c echo.Context) error {
	return h.withBooking(c, func(c echo.Context, id uuid.UUID, ident auth.Identity) error {
		b, err := h.svc.Cancel(c.Request().Context(), id, ident)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, b)
	})
}

func (h *Handler) CompleteBooking(c echo.Context) error {
	return h.withBooking(c, func(c echo.Context, id uuid.UUID, ident auth.Identity) error {
		b, err := h.svc.Complete(c.Request().Context(), id, ident)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, b)
	})
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.withBooking(c, func(c echo.Context, id uuid.UUID, ident auth.Identity) error {
		b, err := h.svc.MarkNoShow(c.Request().Context(), id, ident)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, b)
	})
}

func (h *Handler) withBooking(c echo.Context, fn func(echo.Context, uuid.UUID, auth.Identity) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}
	ident, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return fn(c, id, ident)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	ident, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	id, err := uuid.Parse(ident.SubjectID)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "subject is not a valid id")
	}
	return id, nil
}

// httpError maps domain sentinels to stable HTTP responses. Contention,
// expiry, and the ledger defense all read to the user as "this slot just
// became unavailable".
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSlotContended):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"code": "slot_contended", "message": "this slot just became unavailable, please choose another",
		})
	case errors.Is(err, ErrSlotNoLongerAvailable):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"code": "slot_no_longer_available", "message": "this slot just became unavailable, please choose another",
		})
	case errors.Is(err, ErrSlotExpired):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"code": "slot_expired", "message": "your hold on this slot expired, please re-select it",
		})
	case errors.Is(err, ErrConfirmationFailed):
		return echo.NewHTTPError(http.StatusPaymentRequired, map[string]string{
			"code": "confirmation_failed", "message": "payment was not confirmed, the slot has been released",
		})
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"code": "invalid_transition", "message": err.Error(),
		})
	case errors.Is(err, ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
