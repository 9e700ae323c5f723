package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alert/alert/internal/domain/adds"
	"github.com/alert/alert/internal/domain/extract"
	"github.com/alert/alert/internal/domain/narrative"
	"github.com/alert/alert/internal/domain/redcap"
	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/domain/state"
	"github.com/alert/alert/internal/platform/metrics"
	"github.com/alert/alert/internal/platform/websocket"
)

// DefaultDebounce is the quiet window before a typed edit is recomputed.
const DefaultDebounce = 350 * time.Millisecond

// ErrDeviceIndex is returned when a device index is out of range.
var ErrDeviceIndex = errors.New("device index out of range")

type session struct {
	mu sync.Mutex

	id            string
	state         *state.ClinicalState
	prev          state.PreviousBloods
	report        *narrative.Report
	result        rules.Result
	prompt        rules.DischargePrompt
	dismissed     bool
	previousRisks []string
	quickReview   bool
	createdAt     time.Time
	updatedAt     time.Time

	timer   *time.Timer
	pending bool
	closed  bool
}

// Service owns the live review sessions. Every operation on a session holds
// that session's lock, and so does the debounced recompute.
type Service struct {
	store    SnapshotStore
	engine   *rules.Engine
	survey   *redcap.Builder
	events   websocket.EventPublisher
	logger   zerolog.Logger
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewService(store SnapshotStore, engine *rules.Engine, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		survey:   redcap.NewBuilder(""),
		logger:   logger.With().Str("component", "review").Logger(),
		debounce: DefaultDebounce,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// SetPublisher attaches an optional event publisher for render and toast
// events.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.events = p
}

// SetDebounce changes the recompute quiet window. Values outside 350-600ms
// are clamped.
func (s *Service) SetDebounce(d time.Duration) {
	switch {
	case d < 350*time.Millisecond:
		d = 350 * time.Millisecond
	case d > 600*time.Millisecond:
		d = 600 * time.Millisecond
	}
	s.debounce = d
}

// SetSurveyBaseURL overrides the survey link base.
func (s *Service) SetSurveyBaseURL(base string) {
	s.survey = redcap.NewBuilder(base)
}

// SetClock replaces the wall clock, mostly for tests and fixed timezones.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Close stops every pending recompute.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		sess.closed = true
		if sess.timer != nil {
			sess.timer.Stop()
		}
		sess.mu.Unlock()
	}
	s.sessions = make(map[string]*session)
	metrics.SetActiveSessions(0)
}

// -- Session lifecycle --

// Create opens a new review. reviewType and role may be empty.
func (s *Service) Create(ctx context.Context, reviewType, role string) (*View, error) {
	st := state.New()
	if _, err := st.Set("review_type", orDefault(reviewType, "post"), false); err != nil {
		return nil, err
	}
	if role != "" {
		if _, err := st.Set("clinician_role", role, false); err != nil {
			return nil, err
		}
	}
	now := s.now()
	st.SetText("review_time", reviewClock(now), true)

	sess := &session{
		id:        uuid.New().String(),
		state:     st,
		report:    narrative.NewReport(),
		createdAt: now,
		updatedAt: now,
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.recompute(ctx, sess)
	s.logger.Info().Str("session_id", sess.id).Str("review_type", st.Text("review_type")).Msg("review created")
	return s.view(sess), nil
}

// session returns the live session, restoring it from the store when this
// process has not seen it yet.
func (s *Service) session(ctx context.Context, id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load review %s: %w", id, err)
	}
	sess := &session{id: id}
	restore(sess, snap)
	sess.result = s.engine.Evaluate(sess.state, sess.prev, s.now())
	sess.prompt = rules.EvaluateDischargePrompt(sess.state, sess.result, sess.dismissed)
	s.sessions[id] = sess
	metrics.SetActiveSessions(len(s.sessions))
	return sess, nil
}

func restore(sess *session, snap *Snapshot) {
	sess.state = snap.State
	if sess.state == nil {
		sess.state = state.New()
	}
	report := snap.Report
	if report.Mode == "" {
		report.Mode = narrative.Auto
	}
	sess.report = &report
	sess.dismissed = snap.PromptDismissed
	sess.previousRisks = snap.PreviousRisks
	sess.prev = nil
	sess.quickReview = false
	sess.createdAt = snap.CreatedAt
	sess.updatedAt = snap.UpdatedAt
}

// Get returns the current view. A pending recompute is not flushed.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.view(sess), nil
}

// List returns stored reviews, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	snaps, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	out := make([]Summary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, Summarize(snap))
	}
	return out, total, nil
}

// Delete drops the session and its stored snapshots.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.session(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	if sess != nil {
		sess.mu.Lock()
		sess.closed = true
		if sess.timer != nil {
			sess.timer.Stop()
		}
		sess.mu.Unlock()
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	return nil
}

// -- Edits --

// SetField stores one clinician edit. A nil value unsets the field. Text and
// number edits are recomputed after the quiet window; every other kind is
// recomputed before SetField returns.
func (s *Service) SetField(ctx context.Context, id, name string, value interface{}) (*View, error) {
	def, ok := state.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownField, name)
	}
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	changed, err := sess.state.Set(name, value, false)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return s.view(sess), nil
	}
	automate(sess.state, changed)
	if name == "chk_continue_alert" && sess.state.Flag(name) && sess.prompt.Visible {
		sess.dismissed = true
	}

	if def.Kind == state.KindText || def.Kind == state.KindNumber {
		s.schedule(sess)
		return s.view(sess), nil
	}
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// Recompute flushes a pending debounced recompute immediately.
func (s *Service) Recompute(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// Import merges a free-text note into the review. Previous bloods are
// replaced by those found in the note.
func (s *Service) Import(ctx context.Context, id, text string) (*ImportSummary, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	res := extract.Extract(text, s.now())
	changed, err := extract.Merge(sess.state, res)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.id).Msg("import skipped invalid values")
	}
	automate(sess.state, changed)
	sess.prev = res.PreviousBloods
	if len(res.PreviousRisks) > 0 {
		sess.previousRisks = res.PreviousRisks
	}
	sess.quickReview = extract.QuickReview(res)

	s.recompute(ctx, sess)
	metrics.RecordImport(len(res.Fields))
	s.logger.Info().
		Str("session_id", sess.id).
		Int("fields", len(res.Fields)).
		Int("devices", len(res.Devices)).
		Int("previous_bloods", len(res.PreviousBloods)).
		Bool("quick_review", sess.quickReview).
		Msg("note imported")

	toast := "Data Imported Successfully"
	if res.Empty() {
		toast = "No recognisable data found"
	}
	s.toast(ctx, sess, toast)
	if sess.quickReview {
		s.toast(ctx, sess, "Quick Review - Re-assessing: "+strings.Join(res.RiskCategories, ", "))
	}
	return &ImportSummary{
		Fields:         len(res.Fields),
		Devices:        len(res.Devices),
		PreviousBloods: len(res.PreviousBloods),
		RiskCategories: res.RiskCategories,
		QuickReview:    sess.quickReview,
		Toast:          toast,
		View:           s.view(sess),
	}, nil
}

// EditReport stores clinician text and locks the report against regeneration.
func (s *Service) EditReport(ctx context.Context, id, text string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.report.Edit(text)
	sess.updatedAt = s.now()
	s.persist(ctx, sess)
	return s.view(sess), nil
}

// RegenerateReport releases the lock and renders from the current state.
func (s *Service) RegenerateReport(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.report.Mode = narrative.Auto
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// AddDevice appends a line, drain or device.
func (s *Service) AddDevice(ctx context.Context, id string, d state.DeviceEntry) (*View, error) {
	d.Type = strings.TrimSpace(d.Type)
	if !state.IsDeviceType(d.Type) {
		return nil, fmt.Errorf("unknown device type: %q", d.Type)
	}
	if d.InsertionDate != "" {
		if _, err := time.Parse("2006-01-02", d.InsertionDate); err != nil {
			return nil, fmt.Errorf("insertion_date must be YYYY-MM-DD")
		}
	}
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.state.Devices = append(sess.state.Devices, d)
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// RemoveDevice deletes the device at index.
func (s *Service) RemoveDevice(ctx context.Context, id string, index int) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	devs := sess.state.Devices
	if index < 0 || index >= len(devs) {
		return nil, ErrDeviceIndex
	}
	sess.state.Devices = append(devs[:index:index], devs[index+1:]...)
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// -- ADDS --

// ADDSOutcome is a scored chart and the review it was applied to.
type ADDSOutcome struct {
	Score adds.Result `json:"score"`
	View  *View       `json:"view"`
}

var digitsRe = regexp.MustCompile(`\d+`)

// ApplyADDS scores the calculator inputs and writes the total and the
// readings into the A-E assessment. Oxygen support opens the respiratory
// gate and selects the matching support mode.
func (s *Service) ApplyADDS(ctx context.Context, id string, in adds.Inputs) (*ADDSOutcome, error) {
	if in.O2Mode == "" {
		in.O2Mode = adds.O2Standard
	}
	if in.O2Mode != adds.O2Standard && in.O2Mode != adds.O2HighFlow {
		return nil, fmt.Errorf("o2_mode must be std or hf")
	}
	in.AVPU = strings.ToUpper(strings.TrimSpace(in.AVPU))
	if in.AVPU != "" && adds.ConsciousnessText(in.AVPU) == "" {
		return nil, fmt.Errorf("avpu must be one of A, V, P, U")
	}
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	score := adds.Calculate(in)
	st := sess.state
	set := func(name string, v interface{}) {
		if _, err := st.Set(name, v, true); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sess.id).Str("field", name).Msg("adds write skipped")
		}
	}

	set("calc_o2_mode", string(in.O2Mode))
	set("calc_spo2", in.SpO2)
	set("calc_o2_val", in.O2)
	set("calc_sbp", in.SBP)
	set("calc_dbp", in.DBP)
	set("calc_avpu", in.AVPU)
	set("adds", score.Total)

	if in.RR != "" {
		set("b_rr", in.RR)
	}
	if spo2 := strings.TrimSpace(in.SpO2); spo2 != "" {
		if !strings.Contains(spo2, "%") {
			spo2 += "%"
		}
		set("b_spo2", spo2)
	}
	if o2 := strings.TrimSpace(in.O2); o2 != "" {
		set("b_device", o2)
		set("resp_concern", true)
		mode, flow := oxygenSupport(o2, in.O2Mode)
		if mode != "" {
			set("ox_mod", mode)
		}
		if flow != "" {
			set("np_flow", flow)
		}
	}
	if in.SBP != "" {
		bp := in.SBP
		if in.DBP != "" {
			bp += "/" + in.DBP
		}
		set("c_nibp", bp)
	}
	if in.HR != "" {
		set("c_hr", in.HR)
	}
	if in.Temp != "" {
		set("e_temp", in.Temp)
	}
	if in.AVPU != "" {
		set("d_alert", adds.ConsciousnessText(in.AVPU))
	}
	automate(st, []string{"b_rr", "e_temp", "d_alert"})

	s.recompute(ctx, sess)
	return &ADDSOutcome{Score: score, View: s.view(sess)}, nil
}

// oxygenSupport maps a calculator oxygen entry onto a support mode and, for
// nasal prongs, a flow.
func oxygenSupport(o2 string, mode adds.O2Mode) (string, string) {
	lower := strings.ToLower(o2)
	switch {
	case lower == "ra":
		return "RA", ""
	case strings.Contains(lower, "hfnp") || (strings.Contains(lower, "hf") && mode == adds.O2HighFlow):
		return "HFNP", ""
	case strings.Contains(lower, "np") || strings.Contains(lower, "nasal"):
		return "NP", digitsRe.FindString(o2)
	case strings.Contains(lower, "niv"):
		return "NIV", ""
	case strings.Contains(lower, "trache"):
		return "Trache", ""
	}
	return "", ""
}

// -- Bloods, discharge, clear --

// CopyForwardBloods fills empty current blood fields from the previous
// review's results.
func (s *Service) CopyForwardBloods(ctx context.Context, id string) (*View, string, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	count := 0
	for _, key := range state.LabKeys {
		raw, ok := sess.prev.Get(key)
		if !ok || sess.state.Has("bl_"+key) {
			continue
		}
		if changed := sess.state.SetText("bl_"+key, raw, true); len(changed) > 0 {
			count++
		}
	}
	msg := "No previous bloods found"
	if count > 0 {
		msg = fmt.Sprintf("Filled %d fields", count)
		s.recompute(ctx, sess)
	}
	s.toast(ctx, sess, msg)
	return s.view(sess), msg, nil
}

// DismissDischarge answers "no" to the discharge prompt: it stays hidden and
// reviews continue.
func (s *Service) DismissDischarge(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.dismissed = true
	sess.state.SetBool("chk_continue_alert", true, false)
	automate(sess.state, []string{"chk_continue_alert"})
	s.recompute(ctx, sess)
	return s.view(sess), nil
}

// Clear empties the review. The snapshot taken just before is kept in the
// undo slot.
func (s *Service) Clear(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := s.store.SaveUndo(ctx, s.snapshot(sess)); err != nil {
		metrics.RecordSnapshotError("save_undo")
		return nil, fmt.Errorf("capture undo: %w", err)
	}
	role := sess.state.Text("clinician_role")
	sess.state.Clear()
	sess.state.SetText("review_type", "post", false)
	if role != "" {
		sess.state.SetText("clinician_role", role, false)
	}
	sess.state.SetText("review_time", reviewClock(s.now()), true)
	sess.report.Reset()
	sess.prev = nil
	sess.previousRisks = nil
	sess.quickReview = false
	sess.dismissed = false

	s.recompute(ctx, sess)
	s.toast(ctx, sess, "Data cleared")
	return s.view(sess), nil
}

// Undo restores the snapshot captured by the last clear.
func (s *Service) Undo(ctx context.Context, id string) (*View, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	snap, err := s.store.LoadUndo(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNothingToUndo
		}
		return nil, fmt.Errorf("load undo: %w", err)
	}
	restore(sess, snap)
	if err := s.store.DeleteUndo(ctx, id); err != nil {
		metrics.RecordSnapshotError("delete_undo")
		s.logger.Error().Err(err).Str("session_id", id).Msg("failed to drop undo slot")
	}
	s.recompute(ctx, sess)
	s.toast(ctx, sess, "Review restored")
	return s.view(sess), nil
}

// SurveyURL builds the pre-filled survey link for the review as it stands.
func (s *Service) SurveyURL(ctx context.Context, id string) (string, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	st := sess.state
	return s.survey.URL(redcap.Survey{
		Category:    sess.result.Category.Number(),
		ADDSScore:   st.Text("adds"),
		Ward:        st.Text("pt_ward"),
		Role:        st.Text("clinician_role"),
		Discharge:   st.Flag("chk_discharge_alert"),
		PreStepdown: rules.IsPre(st),
		Now:         s.now(),
	}), nil
}

// -- Recompute --

func (s *Service) schedule(sess *session) {
	sess.pending = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(s.debounce, func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.closed || !sess.pending {
			return
		}
		s.recompute(context.Background(), sess)
	})
}

// recompute runs one full evaluation pass over the latest state. The caller
// holds sess.mu. If the pass fails the previous outcome is kept.
func (s *Service) recompute(ctx context.Context, sess *session) {
	start := time.Now()
	sess.pending = false
	if sess.timer != nil {
		sess.timer.Stop()
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordRuleFault("recompute")
			s.logger.Error().Str("session_id", sess.id).Interface("panic", r).Msg("recompute failed, keeping previous outcome")
		}
	}()

	now := s.now()
	st := sess.state
	autoWorseningCreatinine(st, sess.prev)

	res := s.engine.Evaluate(st, sess.prev, now)
	prompt := rules.EvaluateDischargePrompt(st, res, sess.dismissed)
	if !prompt.Visible && !rules.IsPre(st) && !st.Flag("chk_discharge_alert") && !st.Flag("chk_continue_alert") {
		st.SetBool("chk_continue_alert", true, true)
	}
	text := narrative.Generate(narrative.Input{State: st, Result: res, Prev: sess.prev, Now: now})

	sess.result = res
	sess.prompt = prompt
	sess.report.Render(text)
	sess.updatedAt = now

	for _, f := range res.Faults {
		metrics.RecordRuleFault(f.Rule)
	}
	metrics.RecordRecompute(res.Category.String(), time.Since(start))

	s.persist(ctx, sess)
	if s.events != nil {
		s.publish(ctx, sess, "render", s.view(sess))
	}
}

// persist writes the current snapshot. A store failure is logged and counted
// but never fails the edit that triggered it.
func (s *Service) persist(ctx context.Context, sess *session) {
	if err := s.store.Save(ctx, s.snapshot(sess)); err != nil {
		metrics.RecordSnapshotError("save")
		s.logger.Error().Err(err).Str("session_id", sess.id).Msg("failed to save snapshot")
	}
}

func (s *Service) snapshot(sess *session) *Snapshot {
	report := *sess.report
	return &Snapshot{
		ID:              sess.id,
		State:           sess.state.Clone(),
		Report:          report,
		PromptDismissed: sess.dismissed,
		PreviousRisks:   append([]string(nil), sess.previousRisks...),
		CreatedAt:       sess.createdAt,
		UpdatedAt:       sess.updatedAt,
	}
}

// -- Events --

// Topic is the websocket topic carrying a review's events.
func Topic(id string) string { return "review/" + id }

func (s *Service) publish(ctx context.Context, sess *session, typ string, payload interface{}) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.id).Msg("failed to encode event")
		return
	}
	ev := websocket.Event{
		Type:         typ,
		Topic:        Topic(sess.id),
		ResourceType: "Review",
		ResourceID:   sess.id,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.id).Str("type", typ).Msg("event not delivered")
	}
}

func (s *Service) toast(ctx context.Context, sess *session, msg string) {
	s.publish(ctx, sess, "toast", map[string]string{"message": msg})
}

// reviewClock is the time rounded to the nearest quarter hour, as HH:MM.
func reviewClock(t time.Time) string {
	mins := int(math.Round(float64(t.Minute())/15) * 15)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Duration(mins) * time.Minute)
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
