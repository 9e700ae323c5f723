// Package redcap builds the pre-filled activity survey link for a completed
// review. No request is made; the link is handed to the clinician.
package redcap

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the activity survey endpoint.
const DefaultBaseURL = "https://datalibrary-rc.health.wa.gov.au/surveys/?s=K3WAPC4KKXWNTF3F"

var wardCodes = map[string]string{
	"3A": "1", "3B": "2", "3C": "5", "3D": "3",
	"4A": "6", "4B": "7", "4C": "8", "4D": "9",
	"5A": "10", "5B": "11", "5C": "12", "5D": "13",
	"6A": "14", "6B": "15", "6C": "16", "6D": "17",
	"7A": "18", "7B": "19", "7C": "20", "7D": "21",
	"SRS2A": "59", "SRS1A": "58", "SRSA": "60", "SRSB": "61",
	"ICU Pod 1": "43", "ICU Pod 2": "43", "ICU Pod 3": "43", "ICU Pod 4": "43",
	"CCU": "30", "HDU": "41", "ED": "36",
	"Short Stay": "57", "Transit Lounge": "64",
	"Medihotel":     "55",
	"Mental Health": "65",
}

// WardCode returns the survey location code for a ward.
func WardCode(ward string) (string, bool) {
	c, ok := wardCodes[ward]
	return c, ok
}

// Survey is the data a survey link carries.
type Survey struct {
	Category    int    // 1, 2 or 3
	ADDSScore   string // empty means 0
	Ward        string
	Role        string
	Discharge   bool
	PreStepdown bool
	Now         time.Time
}

// ShiftCode bands a clock time into day (1), evening (2) or night (3).
func ShiftCode(t time.Time) int {
	mins := t.Hour()*60 + t.Minute()
	switch {
	case mins >= 7*60+30 && mins < 14*60+30:
		return 1
	case mins >= 14*60+30 && mins < 20*60:
		return 2
	}
	return 3
}

// Builder formats survey links against a base URL.
type Builder struct {
	baseURL string
}

func NewBuilder(baseURL string) *Builder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Builder{baseURL: baseURL}
}

// URL returns the pre-filled survey link.
func (b *Builder) URL(s Survey) string {
	params := []string{"site=1"}
	if s.PreStepdown {
		params = append(params, "contactreason=4")
	} else {
		params = append(params, "contactreason=6")
	}
	cat := s.Category
	if cat < 1 || cat > 3 {
		cat = 3
	}
	team := "1"
	if s.Role == "ALERT CN" {
		team = "2"
	}
	params = append(params,
		fmt.Sprintf("shifttype=%d", ShiftCode(s.Now)),
		"shift_date="+s.Now.Format("2006-01-02"),
		fmt.Sprintf("icu_category=%d", cat),
		"alert_team="+team,
	)
	if code, ok := WardCode(s.Ward); ok {
		params = append(params, "location_fs="+code)
	}
	score := strings.TrimSpace(s.ADDSScore)
	if score == "" {
		score = "0"
	}
	params = append(params, "adds_score="+url.QueryEscape(score))
	if s.PreStepdown {
		params = append(params, "int_group_a___4=1")
	} else {
		params = append(params, "int_group_a___1=1")
	}
	params = append(params, "int_group_a___8=1", "int_group_b___19=1", "int_group_c___25=1", "int_group_c___28=1")
	if s.Discharge {
		params = append(params, "outcome=1", "int_group_e___42=1")
	} else {
		params = append(params, "outcome=3", "int_group_e___41=1")
	}
	return b.baseURL + "&" + strings.Join(params, "&")
}
