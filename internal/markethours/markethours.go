// Package markethours answers US equity session questions (NYSE regular
// hours, 9:30-16:00 America/New_York, Mon-Fri, excluding exchange holidays).
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Eastern is the exchange's time zone.
var Eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Regular session in Eastern time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// IsMarketOpen reports whether t falls inside the regular session.
func IsMarketOpen(t time.Time) bool {
	et := t.In(Eastern)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday reports whether t is Mon-Fri in Eastern time.
func IsWeekday(t time.Time) bool {
	wd := t.In(Eastern).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(Eastern)
	return IsWeekday(et) && !IsHoliday(et)
}

func openOn(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
}

// NextOpen returns the next session open at or after t. During a session it
// returns the following session's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	if IsTradingDay(et) && et.Before(openOn(et)) {
		return openOn(et)
	}
	d := et
	for i := 0; i < 14; i++ {
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 12, 0, 0, 0, Eastern)
		if IsTradingDay(d) {
			return openOn(d)
		}
	}
	return openOn(d)
}

// TodayClose returns the close of t's Eastern calendar day.
func TodayClose(t time.Time) time.Time {
	et := t.In(Eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, Eastern)
}

// TimeUntilClose returns the time left in the session, or 0 when closed.
func TimeUntilClose(t time.Time) time.Duration {
	if !IsMarketOpen(t) {
		return 0
	}
	return TodayClose(t).Sub(t)
}

// Status is the market state reported to clients.
type Status struct {
	IsOpen    bool      `json:"is_open"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close,omitempty"`
	Timezone  string    `json:"timezone"`
}

// StatusAt describes the market at t.
func StatusAt(t time.Time) Status {
	s := Status{Timezone: Eastern.String(), NextOpen: NextOpen(t)}
	if IsMarketOpen(t) {
		s.IsOpen = true
		s.Status = "open"
		s.NextClose = TodayClose(t)
		s.Message = fmt.Sprintf("Market open, closes in %s", fmtDur(TimeUntilClose(t)))
		return s
	}
	s.Status = "closed"
	next := s.NextOpen.In(Eastern)
	s.Message = fmt.Sprintf("Market closed, opens %s %s ET (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
	return s
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
