// Package rules grades a review into red and amber findings and an overall
// category.
package rules

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alert/alert/internal/domain/state"
)

// Context is everything a rule block may read. Blocks never see each other's
// output.
type Context struct {
	State *state.ClinicalState
	Prev  state.PreviousBloods
	Now   time.Time
	Ward  WardTime
	Pre   bool
}

// num reads a field and treats zero as no value.
func (c *Context) num(name string) (float64, bool) {
	v, ok := c.State.Num(name)
	return v, ok && v != 0
}

// creatinine is the current creatinine from the bloods panel or the risk
// section.
func (c *Context) creatinine() (float64, bool) {
	return c.State.NumOr("bl_cr_review", "cr_review")
}

type collector struct {
	red        []Finding
	amber      []Finding
	suppressed []string
}

func (c *collector) add(sev Severity, text, note string, fields ...string) {
	f := Finding{Text: withNote(text, note), Severity: sev, Fields: fields}
	if sev == Red {
		c.red = append(c.red, f)
	} else {
		c.amber = append(c.amber, f)
	}
}

func (c *collector) suppress(text string) {
	c.suppressed = append(c.suppressed, text)
}

// Rule is one independent block of the evaluation.
type Rule struct {
	Name string
	Eval func(*Context, *collector)
}

// DefaultRules is the evaluation order. Findings are reported in this order
// within each severity.
func DefaultRules() []Rule {
	return []Rule{
		{"vasoactive", vasoactiveRule},
		{"adds", addsRule},
		{"heart_rate", heartRateRule},
		{"blood_pressure", bloodPressureRule},
		{"respiratory_rate", respiratoryRateRule},
		{"oxygen_saturation", oxygenSaturationRule},
		{"temperature", temperatureRule},
		{"respiratory", respiratoryRule},
		{"discharge_context", dischargeContextRule},
		{"neurological", neurologicalRule},
		{"electrolyte", electrolyteRule},
		{"renal", renalRule},
		{"infection", infectionRule},
		{"immobility", immobilityRule},
		{"laboratory", laboratoryRule},
		{"pain", painRule},
		{"worsening_creatinine", worseningCreatinineRule},
		{"wellbeing", wellbeingRule},
		{"comorbidities", comorbiditiesRule},
		{"lactate", lactateRule},
		{"override", overrideRule},
		{"age", ageRule},
	}
}

// Engine runs the rule blocks.
type Engine struct {
	rules  []Rule
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{rules: DefaultRules(), logger: logger}
}

// WithRules returns an engine running the given blocks instead of the defaults.
func (e *Engine) WithRules(rules []Rule) *Engine {
	return &Engine{rules: rules, logger: e.logger}
}

// Evaluate grades the state. A block that panics contributes nothing and is
// reported in Result.Faults; the remaining blocks still run.
func (e *Engine) Evaluate(s *state.ClinicalState, prev state.PreviousBloods, now time.Time) Result {
	pre := IsPre(s)
	ctx := &Context{State: s, Prev: prev, Now: now, Ward: ComputeWardTime(s, now), Pre: pre}

	var all collector
	var faults []Fault
	for _, r := range e.rules {
		part, err := e.run(r, ctx)
		if err != nil {
			e.logger.Error().Err(err).Str("rule", r.Name).Msg("rule block failed")
			faults = append(faults, Fault{Rule: r.Name, Error: err.Error()})
			continue
		}
		all.red = append(all.red, part.red...)
		all.amber = append(all.amber, part.amber...)
		all.suppressed = append(all.suppressed, part.suppressed...)
	}

	red := dedupe(all.red)
	amber := dedupe(all.amber)
	return Result{
		Red:        red,
		Amber:      amber,
		Suppressed: dedupeText(all.suppressed),
		Category:   categorize(len(red), len(amber)),
		WardTime:   ctx.Ward,
		Faults:     faults,
	}
}

func (e *Engine) run(r Rule, ctx *Context) (part collector, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	r.Eval(ctx, &part)
	return part, nil
}

// Evaluate runs the default rules without logging.
func Evaluate(s *state.ClinicalState, prev state.PreviousBloods, now time.Time) Result {
	return NewEngine(zerolog.Nop()).Evaluate(s, prev, now)
}

func dedupe(in []Finding) []Finding {
	seen := make(map[string]bool, len(in))
	out := make([]Finding, 0, len(in))
	for _, f := range in {
		if seen[f.Text] {
			continue
		}
		seen[f.Text] = true
		out = append(out, f)
	}
	return out
}

func dedupeText(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
