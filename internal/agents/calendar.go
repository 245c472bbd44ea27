package agents

import "time"

// Calendar answers whether the trading session is open at a given time.
type Calendar interface {
	IsOpen(t time.Time) bool
}

// SessionCalendar is a single daily session in local time, closed on
// weekends. The default window is deliberately wide to span the extended
// session of the routed venues.
type SessionCalendar struct {
	openHour    int
	openMinute  int
	closeHour   int
	closeMinute int
}

// NewSessionCalendar returns the default 01:30-23:00 session.
func NewSessionCalendar() *SessionCalendar {
	return &SessionCalendar{
		openHour:    1,
		openMinute:  30,
		closeHour:   23,
		closeMinute: 0,
	}
}

// IsOpen reports whether t falls inside the session window on a weekday.
func (c *SessionCalendar) IsOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	open := c.openHour*60 + c.openMinute
	close := c.closeHour*60 + c.closeMinute
	return minutes >= open && minutes < close
}
