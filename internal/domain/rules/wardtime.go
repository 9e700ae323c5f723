package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/alert/alert/internal/domain/state"
)

// WardTime is the time elapsed since ICU stepdown.
type WardTime struct {
	Hours float64 `json:"hours"`
	Text  string  `json:"text"`
}

var stepdownBandHour = map[string]int{
	"Morning":   9,
	"Afternoon": 15,
	"Evening":   18,
	"Night":     21,
}

// IsPre reports whether the review is a pre-stepdown review. Reviews default
// to post-stepdown.
func IsPre(s *state.ClinicalState) bool {
	return s.Text("review_type") == "pre"
}

// StepdownTime resolves the stepdown date and time band to an instant in loc.
func StepdownTime(s *state.ClinicalState, loc *time.Location) (time.Time, bool) {
	date := s.Text("stepdown_date")
	if date == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, false
	}
	h, ok := stepdownBandHour[s.Text("stepdown_time")]
	if !ok {
		h = 12
	}
	return d.Add(time.Duration(h) * time.Hour), true
}

// ComputeWardTime works out how long the patient has been on the ward.
func ComputeWardTime(s *state.ClinicalState, now time.Time) WardTime {
	if IsPre(s) {
		return WardTime{Text: "(Pre-Stepdown)"}
	}
	at, ok := StepdownTime(s, now.Location())
	if !ok {
		return WardTime{}
	}
	hours := now.Sub(at).Hours()
	switch {
	case hours < 0:
		return WardTime{Hours: hours, Text: "(Planned Stepdown)"}
	case hours < 12:
		return WardTime{Hours: hours, Text: fmt.Sprintf("%d hours", int(math.Round(hours)))}
	case hours <= 48:
		half := math.Round(hours/24*2) / 2
		return WardTime{Hours: hours, Text: fmtNum(half) + " days"}
	}
	return WardTime{Hours: hours, Text: fmt.Sprintf("%d days", int(math.Round(hours/24)))}
}

// Recent is true inside the post-stepdown observation window.
func (w WardTime) Recent(pre bool) bool {
	return pre || w.Hours < 24
}
