// ABOUTME: iCalendar export of a user's appointments
// ABOUTME: Renders upcoming and recent appointments as a VCALENDAR feed with go-ical
package web

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/labstack/echo/v4"

	"github.com/harperreed/vesta/db"
	"github.com/harperreed/vesta/models"
)

const (
	icalProductID   = "-//Vesta CRM//Appointments//EN"
	icalFeedHorizon = 90 * 24 * time.Hour
	icalFeedLimit   = 1000
	icalContentType = "text/calendar; charset=utf-8"
)

// appointmentsToICal builds a calendar with one VEVENT per appointment.
func appointmentsToICal(appointments []models.Appointment, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icalProductID)

	for i := range appointments {
		a := &appointments[i]
		vevent := ical.NewComponent(ical.CompEvent)
		vevent.Props.SetText(ical.PropUID, a.ID.String()+"@vesta")
		vevent.Props.SetText(ical.PropSummary, a.Title())
		if a.Notes != "" {
			vevent.Props.SetText(ical.PropDescription, a.Notes)
		}
		if a.Location != "" {
			vevent.Props.SetText(ical.PropLocation, a.Location)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, a.StartsAt.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, a.EndsAt.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		vevent.Props.SetDateTime(ical.PropLastModified, a.UpdatedAt.UTC())
		if a.Status == models.AppointmentScheduled {
			vevent.Props.SetText(ical.PropStatus, "TENTATIVE")
		} else {
			vevent.Props.SetText(ical.PropStatus, "CONFIRMED")
		}
		cal.Children = append(cal.Children, vevent)
	}

	return cal
}

func (s *Server) handleICalFeed(c echo.Context) error {
	now := time.Now().UTC()
	from := now.Add(-icalFeedHorizon)

	appointments, err := db.ListAppointments(s.db, currentUser(c), db.AppointmentFilter{
		From:  &from,
		Limit: icalFeedLimit,
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="vesta.ics"`)

	// The encoder rejects a VCALENDAR without components.
	if len(appointments) == 0 {
		empty := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + icalProductID + "\r\nEND:VCALENDAR\r\n"
		return c.Blob(http.StatusOK, icalContentType, []byte(empty))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(appointmentsToICal(appointments, now)); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	return c.Blob(http.StatusOK, icalContentType, buf.Bytes())
}
