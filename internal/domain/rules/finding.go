package rules

import "fmt"

// Severity grades a finding.
type Severity int

const (
	Amber Severity = iota + 1
	Red
)

func (s Severity) String() string {
	if s == Red {
		return "red"
	}
	return "amber"
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "red":
		*s = Red
	case "amber":
		*s = Amber
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Finding is one graded risk statement.
type Finding struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
	Fields   []string `json:"source_fields,omitempty"`
}

// Category is the overall outcome of a review.
type Category int

const (
	Green Category = iota
	CategoryAmber
	CategoryRed
)

// Label is the CAT label used in reports and surveys.
func (c Category) Label() string {
	switch c {
	case CategoryRed:
		return "CAT 1"
	case CategoryAmber:
		return "CAT 2"
	default:
		return "CAT 3"
	}
}

// Number is the CAT number.
func (c Category) Number() int {
	switch c {
	case CategoryRed:
		return 1
	case CategoryAmber:
		return 2
	default:
		return 3
	}
}

func (c Category) String() string {
	switch c {
	case CategoryRed:
		return "red"
	case CategoryAmber:
		return "amber"
	default:
		return "green"
	}
}

// MarshalText encodes the category by colour.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	switch string(b) {
	case "red":
		*c = CategoryRed
	case "amber":
		*c = CategoryAmber
	case "green":
		*c = Green
	default:
		return fmt.Errorf("unknown category %q", b)
	}
	return nil
}

// Fault records a rule block that failed during evaluation.
type Fault struct {
	Rule  string `json:"rule"`
	Error string `json:"error"`
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Red        []Finding `json:"red"`
	Amber      []Finding `json:"amber"`
	Suppressed []string  `json:"suppressed"`
	Category   Category  `json:"category"`
	WardTime   WardTime  `json:"ward_time"`
	Faults     []Fault   `json:"faults,omitempty"`
}

// RiskLines are the report lines for the risk section: red, then amber, then
// suppressed notices.
func (r Result) RiskLines() []string {
	out := make([]string, 0, len(r.Red)+len(r.Amber)+len(r.Suppressed))
	for _, f := range r.Red {
		out = append(out, f.Text)
	}
	for _, f := range r.Amber {
		out = append(out, f.Text)
	}
	return append(out, r.Suppressed...)
}

func categorize(red, amber int) Category {
	switch {
	case red > 0:
		return CategoryRed
	case amber > 0:
		return CategoryAmber
	}
	return Green
}
