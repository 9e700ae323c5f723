package review

import (
	"errors"
	"time"

	"github.com/alert/alert/internal/domain/narrative"
	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/domain/state"
)

// ErrNotFound is returned when a review or its undo slot does not exist.
var ErrNotFound = errors.New("review not found")

// ErrNothingToUndo is returned by Undo when no clear has been captured.
var ErrNothingToUndo = errors.New("nothing to undo")

// Snapshot is the persisted form of a review. Previous bloods are transient
// and deliberately not part of it.
type Snapshot struct {
	ID              string               `json:"id"`
	State           *state.ClinicalState `json:"state"`
	Report          narrative.Report     `json:"report"`
	PromptDismissed bool                 `json:"prompt_dismissed"`
	PreviousRisks   []string             `json:"previous_risks,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Summary is the list entry for a stored review.
type Summary struct {
	ID          string    `json:"id"`
	PatientName string    `json:"patient_name,omitempty"`
	URN         string    `json:"urn,omitempty"`
	Ward        string    `json:"ward,omitempty"`
	ReviewType  string    `json:"review_type"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summarize reduces a snapshot to its list entry.
func Summarize(s *Snapshot) Summary {
	sum := Summary{ID: s.ID, ReviewType: "post", UpdatedAt: s.UpdatedAt}
	if s.State == nil {
		return sum
	}
	sum.PatientName = s.State.Text("pt_name")
	sum.URN = s.State.Text("pt_mrn")
	sum.Ward = s.State.Text("pt_ward")
	if rules.IsPre(s.State) {
		sum.ReviewType = "pre"
	}
	return sum
}

// DeviceView is a device with its dwell derived for display.
type DeviceView struct {
	state.DeviceEntry
	Index     int    `json:"index"`
	DwellDays *int   `json:"dwell_days,omitempty"`
	Dwell     string `json:"dwell"`
}

// BloodFlag marks a current blood result outside its normal range.
type BloodFlag struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// View is everything a client needs to render a review.
type View struct {
	ID              string                 `json:"id"`
	Fields          map[string]interface{} `json:"fields"`
	Derived         []string               `json:"derived,omitempty"`
	Devices         []DeviceView           `json:"devices"`
	Red             []rules.Finding        `json:"red"`
	Amber           []rules.Finding        `json:"amber"`
	Suppressed      []string               `json:"suppressed"`
	Category        rules.Category         `json:"category"`
	CategoryLabel   string                 `json:"category_label"`
	WardTime        rules.WardTime         `json:"ward_time"`
	Faults          []rules.Fault          `json:"faults,omitempty"`
	Report          string                 `json:"report"`
	ReportMode      narrative.LockMode     `json:"report_mode"`
	Plan            []string               `json:"plan"`
	DischargePrompt rules.DischargePrompt  `json:"discharge_prompt"`
	Missing         []string               `json:"missing,omitempty"`
	Nudge           string                 `json:"nudge,omitempty"`
	AbnormalBloods  []BloodFlag            `json:"abnormal_bloods,omitempty"`
	PreviousBloods  state.PreviousBloods   `json:"previous_bloods,omitempty"`
	PreviousRisks   []string               `json:"previous_risks,omitempty"`
	QuickReview     bool                   `json:"quick_review"`
	NLR             *float64               `json:"nlr,omitempty"`
	UOPTarget       *float64               `json:"uop_target,omitempty"`
	PressorCeased   string                 `json:"pressor_ceased,omitempty"`
	Pending         bool                   `json:"pending"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ImportSummary reports what one import recognised.
type ImportSummary struct {
	Fields         int      `json:"fields"`
	Devices        int      `json:"devices"`
	PreviousBloods int      `json:"previous_bloods"`
	RiskCategories []string `json:"risk_categories,omitempty"`
	QuickReview    bool     `json:"quick_review"`
	Toast          string   `json:"toast"`
	View           *View    `json:"view"`
}

// normalRanges are the reference ranges used to flag abnormal bloods.
var normalRanges = map[string][2]float64{
	"wcc":        {4, 11},
	"crp":        {0, 5},
	"neut":       {1.5, 7.5},
	"lymph":      {1.0, 4.0},
	"hb":         {115, 165},
	"plts":       {150, 400},
	"k":          {3.5, 5.2},
	"na":         {135, 145},
	"cr_review":  {50, 98},
	"egfr":       {60, 120},
	"mg":         {0.7, 1.1},
	"alb":        {35, 50},
	"lac_review": {0.5, 2.0},
	"phos":       {0.8, 1.5},
	"bili":       {0, 20},
	"alt":        {0, 40},
	"inr":        {0.9, 1.2},
	"aptt":       {25, 38},
}
