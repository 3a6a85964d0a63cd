package email

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// ShiftInvite - данные для приглашения в календарь
type ShiftInvite struct {
	UID       string
	Summary   string
	Location  string
	StartsAt  time.Time
	EndsAt    time.Time
	Organizer string
}

// BuildShiftInvite строит .ics (METHOD:REQUEST) для назначенной смены
func BuildShiftInvite(inv ShiftInvite, now time.Time) Attachment {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//shift-offers//EN")

	event := cal.AddEvent(inv.UID)
	event.SetCreatedTime(now)
	event.SetDtStampTime(now)
	event.SetStartAt(inv.StartsAt)
	event.SetEndAt(inv.EndsAt)
	event.SetSummary(inv.Summary)
	if inv.Location != "" {
		event.SetLocation(inv.Location)
	}
	if inv.Organizer != "" {
		event.SetOrganizer("mailto:" + inv.Organizer)
	}

	return Attachment{
		Name:        "shift.ics",
		Content:     []byte(cal.Serialize()),
		ContentType: "text/calendar; method=REQUEST; charset=UTF-8",
	}
}
