package narrative

import "strings"

// LockMode records whether the report text still follows the generator.
type LockMode string

const (
	Auto           LockMode = "auto"
	ManuallyEdited LockMode = "manually_edited"
)

// Report is the rendered report together with its edit lock.
type Report struct {
	Text string   `json:"text"`
	Mode LockMode `json:"mode"`
}

func NewReport() *Report {
	return &Report{Mode: Auto}
}

// Locked reports whether regeneration is currently suppressed.
func (r *Report) Locked() bool {
	return r.Mode == ManuallyEdited && strings.TrimSpace(r.Text) != ""
}

// Render replaces the text with generated output unless the clinician has
// edited it. It reports whether the text was replaced.
func (r *Report) Render(generated string) bool {
	if r.Locked() {
		return false
	}
	r.Text = generated
	return true
}

// Edit stores clinician-written text and engages the lock.
func (r *Report) Edit(text string) {
	r.Text = text
	r.Mode = ManuallyEdited
}

// ForceRegenerate releases the lock and renders once.
func (r *Report) ForceRegenerate(generated string) {
	r.Mode = Auto
	r.Text = generated
}

// Reset empties the report and releases the lock.
func (r *Report) Reset() {
	r.Text = ""
	r.Mode = Auto
}
