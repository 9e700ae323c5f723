// Package adds scores the Adult Deterioration Detection System chart from a
// set of bedside vital signs.
package adds

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alert/alert/internal/domain/state"
)

// O2Mode selects how the oxygen amount is read: litres per minute or FiO2 %.
type O2Mode string

const (
	O2Standard O2Mode = "std"
	O2HighFlow O2Mode = "hf"
)

// Inputs are the raw calculator entries. Any entry may be blank.
type Inputs struct {
	RR     string `json:"rr"`
	SpO2   string `json:"spo2"`
	O2Mode O2Mode `json:"o2_mode"`
	O2     string `json:"o2"`
	SBP    string `json:"sbp"`
	DBP    string `json:"dbp"`
	HR     string `json:"hr"`
	Temp   string `json:"temp"`
	AVPU   string `json:"avpu"`
}

// SubScore is one banded component. Critical marks the maximal band of a
// parameter and is independent of the numeric score.
type SubScore struct {
	Score    int  `json:"score"`
	Critical bool `json:"critical"`
}

// Display renders the sub-score the way the chart shows it.
func (s SubScore) Display() string {
	if s.Critical {
		return "M"
	}
	return strconv.Itoa(s.Score)
}

// Result is a scored chart.
type Result struct {
	RR       SubScore `json:"rr"`
	SpO2     SubScore `json:"spo2"`
	O2       SubScore `json:"o2"`
	SBP      SubScore `json:"sbp"`
	HR       SubScore `json:"hr"`
	Temp     SubScore `json:"temp"`
	AVPU     SubScore `json:"avpu"`
	Total    int      `json:"total"`
	Critical bool     `json:"critical"`
}

var firstNumRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseVital reads a calculator entry. It accepts everything ParseNumber does
// plus "Afebrile" (36.8) and "RA" (0), and falls back to the first number
// anywhere in the entry ("2LNP" is 2).
func ParseVital(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, "afebrile") {
		return 36.8, true
	}
	if s == "ra" {
		return 0, true
	}
	if n, ok := state.ParseNumber(s); ok {
		return n, true
	}
	if m := firstNumRe.FindString(s); m != "" {
		n, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func scoreRR(n float64) SubScore {
	switch {
	case n >= 36 || n <= 4:
		return SubScore{3, true}
	case n >= 30:
		return SubScore{3, false}
	case n >= 25:
		return SubScore{2, false}
	case n >= 21:
		return SubScore{1, false}
	case n <= 9:
		return SubScore{3, false}
	}
	return SubScore{}
}

func scoreSpO2(n float64) SubScore {
	switch {
	case n >= 94:
		return SubScore{}
	case n >= 90:
		return SubScore{1, false}
	case n >= 85:
		return SubScore{2, false}
	}
	return SubScore{3, true}
}

func scoreO2(raw string, n float64, mode O2Mode) SubScore {
	if strings.EqualFold(strings.TrimSpace(raw), "ra") {
		return SubScore{}
	}
	if mode == O2HighFlow {
		switch {
		case n >= 60:
			return SubScore{3, false}
		case n >= 40:
			return SubScore{2, false}
		case n >= 29:
			return SubScore{1, false}
		}
		return SubScore{}
	}
	switch {
	case n > 10:
		return SubScore{3, false}
	case n >= 5:
		return SubScore{2, false}
	case n >= 2:
		return SubScore{1, false}
	}
	return SubScore{}
}

func scoreSBP(n float64) SubScore {
	switch {
	case n >= 200:
		return SubScore{3, false}
	case n >= 180:
		return SubScore{2, false}
	case n >= 160:
		return SubScore{1, false}
	case n <= 89:
		return SubScore{3, true}
	case n <= 99:
		return SubScore{2, false}
	case n <= 109:
		return SubScore{1, false}
	}
	return SubScore{}
}

func scoreHR(n float64) SubScore {
	switch {
	case n >= 140:
		return SubScore{3, true}
	case n >= 130:
		return SubScore{3, false}
	case n > 120:
		return SubScore{2, false}
	case n >= 100:
		return SubScore{1, false}
	case n <= 39:
		return SubScore{3, true}
	case n <= 49:
		return SubScore{1, false}
	}
	return SubScore{}
}

func scoreTemp(n float64) SubScore {
	switch {
	case n >= 38.6:
		return SubScore{2, false}
	case n >= 38.0:
		return SubScore{1, false}
	case n <= 35.0:
		return SubScore{3, false}
	case n <= 36.0:
		return SubScore{1, false}
	}
	return SubScore{}
}

func scoreAVPU(v string) SubScore {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "V":
		return SubScore{2, false}
	case "P":
		return SubScore{3, false}
	case "U":
		return SubScore{3, true}
	}
	return SubScore{}
}

func banded(raw string, fn func(float64) SubScore) SubScore {
	n, ok := ParseVital(raw)
	if !ok {
		return SubScore{}
	}
	return fn(n)
}

// Calculate scores every entry and sums them. A blank or unreadable entry
// scores zero.
func Calculate(in Inputs) Result {
	r := Result{
		RR:   banded(in.RR, scoreRR),
		SpO2: banded(in.SpO2, scoreSpO2),
		SBP:  banded(in.SBP, scoreSBP),
		HR:   banded(in.HR, scoreHR),
		Temp: banded(in.Temp, scoreTemp),
		AVPU: scoreAVPU(in.AVPU),
	}
	if n, ok := ParseVital(in.O2); ok {
		r.O2 = scoreO2(in.O2, n, in.O2Mode)
	}
	for _, s := range []SubScore{r.RR, r.SpO2, r.O2, r.SBP, r.HR, r.Temp, r.AVPU} {
		r.Total += s.Score
		r.Critical = r.Critical || s.Critical
	}
	return r
}

// ConsciousnessText is the A-E wording for an AVPU level.
func ConsciousnessText(avpu string) string {
	switch strings.ToUpper(strings.TrimSpace(avpu)) {
	case "V":
		return "alert to voice"
	case "P":
		return "alert to pain"
	case "U":
		return "unresponsive"
	case "A":
		return "Alert"
	}
	return ""
}
