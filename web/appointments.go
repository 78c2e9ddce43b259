// ABOUTME: Appointment endpoints for the CRM calendar
// ABOUTME: Create, list, edit and cancel appointments; edits schedule a push to Google
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

const (
	defaultAppointmentLimit = 100
	maxAppointmentLimit     = 500
)

type createAppointmentRequest struct {
	ContactID *uuid.UUID               `json:"contact_id"`
	ListingID string                   `json:"listing_id" validate:"max=64"`
	Type      models.AppointmentType   `json:"type" validate:"required,oneof=visit meeting call signing other"`
	Status    models.AppointmentStatus `json:"status" validate:"omitempty,oneof=scheduled confirmed"`
	StartsAt  time.Time                `json:"starts_at" validate:"required"`
	EndsAt    time.Time                `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Notes     string                   `json:"notes" validate:"max=2000"`
	Location  string                   `json:"location" validate:"max=500"`
}

type updateAppointmentRequest struct {
	ContactID *uuid.UUID                `json:"contact_id"`
	ListingID *string                   `json:"listing_id" validate:"omitempty,max=64"`
	Type      *models.AppointmentType   `json:"type" validate:"omitempty,oneof=visit meeting call signing other"`
	Status    *models.AppointmentStatus `json:"status" validate:"omitempty,oneof=scheduled confirmed completed"`
	StartsAt  *time.Time                `json:"starts_at"`
	EndsAt    *time.Time                `json:"ends_at"`
	Notes     *string                   `json:"notes" validate:"omitempty,max=2000"`
	Location  *string                   `json:"location" validate:"omitempty,max=500"`
}

// bindRequest decodes and validates a JSON body into T.
func bindRequest[T any](s *Server, c echo.Context) (*T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// checkContact verifies that contactID names one of the user's contacts.
func (s *Server) checkContact(userID uuid.UUID, contactID *uuid.UUID) error {
	if contactID == nil {
		return nil
	}
	contact, err := db.GetContact(s.db, *contactID)
	if err != nil {
		return err
	}
	if contact == nil || contact.UserID != userID {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown contact_id")
	}
	return nil
}

// ownedAppointment loads the :id appointment, hiding other users' rows.
func (s *Server) ownedAppointment(c echo.Context) (*models.Appointment, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id: must be a valid UUID")
	}
	a, err := db.GetAppointment(s.db, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.UserID != currentUser(c) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return a, nil
}

func (s *Server) handleCreateAppointment(c echo.Context) error {
	req, err := bindRequest[createAppointmentRequest](s, c)
	if err != nil {
		return err
	}

	userID := currentUser(c)
	if err := s.checkContact(userID, req.ContactID); err != nil {
		return err
	}

	status := req.Status
	if status == "" {
		status = models.AppointmentScheduled
	}

	a := &models.Appointment{
		UserID:    userID,
		ContactID: req.ContactID,
		ListingID: req.ListingID,
		Type:      req.Type,
		Status:    status,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		Notes:     req.Notes,
		Location:  req.Location,
	}
	if err := db.CreateAppointment(s.db, a); err != nil {
		return err
	}

	s.svc.ScheduleLocalPush(userID)
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) handleListAppointments(c echo.Context) error {
	filter := db.AppointmentFilter{Limit: defaultAppointmentLimit}

	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.QueryParam(bound.param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+bound.param+": must be RFC3339")
		}
		*bound.dst = &t
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = min(limit, maxAppointmentLimit)
	}
	filter.IncludeCancelled = c.QueryParam("include_cancelled") == "true"

	appointments, err := db.ListAppointments(s.db, currentUser(c), filter)
	if err != nil {
		return err
	}
	if appointments == nil {
		appointments = []models.Appointment{}
	}
	return c.JSON(http.StatusOK, appointments)
}

func (s *Server) handleUpdateAppointment(c echo.Context) error {
	a, err := s.ownedAppointment(c)
	if err != nil {
		return err
	}
	if a.Status == models.AppointmentCancelled {
		return echo.NewHTTPError(http.StatusConflict, "appointment is cancelled")
	}

	req, err := bindRequest[updateAppointmentRequest](s, c)
	if err != nil {
		return err
	}
	if err := s.checkContact(a.UserID, req.ContactID); err != nil {
		return err
	}

	if req.ContactID != nil {
		a.ContactID = req.ContactID
	}
	if req.ListingID != nil {
		a.ListingID = *req.ListingID
	}
	if req.Type != nil {
		a.Type = *req.Type
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if req.StartsAt != nil {
		a.StartsAt = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		a.EndsAt = req.EndsAt.UTC()
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	if req.Location != nil {
		a.Location = *req.Location
	}
	if !a.EndsAt.After(a.StartsAt) {
		return echo.NewHTTPError(http.StatusBadRequest, "ends_at must be after starts_at")
	}

	if err := db.UpdateAppointment(s.db, a); err != nil {
		return err
	}

	s.svc.ScheduleLocalPush(a.UserID)
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleCancelAppointment(c echo.Context) error {
	a, err := s.ownedAppointment(c)
	if err != nil {
		return err
	}
	if a.Status == models.AppointmentCancelled {
		return c.JSON(http.StatusOK, a)
	}

	a.Status = models.AppointmentCancelled
	if err := db.UpdateAppointment(s.db, a); err != nil {
		return err
	}

	s.svc.ScheduleLocalPush(a.UserID)
	return c.JSON(http.StatusOK, a)
}
