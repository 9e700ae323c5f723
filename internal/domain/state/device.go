package state

import (
	"fmt"
	"time"
)

// DeviceTypes are the recognised line, drain and device kinds in display order.
var DeviceTypes = []string{
	"CVC", "PICC", "Other CVAD", "PIVC", "Arterial Line", "Enteral Tube", "IDC",
	"Pacing Wire", "Drain", "Wound", "Vascath", "Other Device",
}

var trackedDevices = map[string]bool{
	"CVC": true, "PICC": true, "Other CVAD": true, "PIVC": true, "IDC": true, "Vascath": true,
}

// DeviceEntry is one line, drain or device. InsertionDate is YYYY-MM-DD.
type DeviceEntry struct {
	Type          string `json:"type"`
	Details       string `json:"details,omitempty"`
	InsertionDate string `json:"insertion_date,omitempty"`
}

// DwellLevel bands how long a tracked device has been in place.
type DwellLevel int

const (
	DwellNone DwellLevel = iota
	DwellLong
	DwellVeryLong
	DwellCritical
)

func (l DwellLevel) String() string {
	switch l {
	case DwellLong:
		return "long"
	case DwellVeryLong:
		return "very_long"
	case DwellCritical:
		return "critical"
	default:
		return "none"
	}
}

// IsDeviceType reports whether t is a recognised device type.
func IsDeviceType(t string) bool {
	for _, d := range DeviceTypes {
		if d == t {
			return true
		}
	}
	return false
}

// Tracked reports whether dwell time is tracked for the device type.
func (d DeviceEntry) Tracked() bool {
	return trackedDevices[d.Type]
}

// Inserted parses the insertion date in loc.
func (d DeviceEntry) Inserted(loc *time.Location) (time.Time, bool) {
	if d.InsertionDate == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006-01-02", d.InsertionDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DwellDays is the whole number of days since insertion. It is derived on
// every read and never stored.
func (d DeviceEntry) DwellDays(now time.Time) (int, bool) {
	ins, ok := d.Inserted(now.Location())
	if !ok {
		return 0, false
	}
	days := int(now.Sub(ins).Hours() / 24)
	if now.Before(ins) {
		days = 0
	}
	return days, true
}

// DwellThreshold is the dwell day count from which the device counts as a long
// dwell.
func (d DeviceEntry) DwellThreshold() int {
	if d.Type == "PIVC" {
		return 3
	}
	return 7
}

// Dwell returns the dwell band for a tracked device.
func (d DeviceEntry) Dwell(now time.Time) DwellLevel {
	if !d.Tracked() {
		return DwellNone
	}
	days, ok := d.DwellDays(now)
	if !ok {
		return DwellNone
	}
	long, veryLong, critical := 7, 10, 14
	if d.Type == "PIVC" {
		long, veryLong, critical = 3, 5, 7
	}
	switch {
	case days >= critical:
		return DwellCritical
	case days >= veryLong:
		return DwellVeryLong
	case days >= long:
		return DwellLong
	}
	return DwellNone
}

// ReportLine renders the device as it appears in the narrative report.
func (d DeviceEntry) ReportLine(now time.Time) string {
	line := "- " + d.Type
	if d.Details != "" {
		line += " " + d.Details
	}
	ins, ok := d.Inserted(now.Location())
	if !ok {
		return line
	}
	line += " inserted " + ins.Format("02/01/2006")
	if d.Tracked() {
		days, _ := d.DwellDays(now)
		line += fmt.Sprintf(", %dd", days)
		if days >= d.DwellThreshold() {
			line += ", long dwell"
		} else {
			line += " dwell"
		}
	}
	return line
}

// PreviousBloods maps a lab key to the value reported in the previous review.
// It is filled only by import and is never persisted.
type PreviousBloods map[string]string

// Get returns the previous value for a lab key.
func (p PreviousBloods) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[key]
	return v, ok && v != ""
}
