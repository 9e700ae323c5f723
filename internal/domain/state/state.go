package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrKind         = errors.New("value does not match field kind")
	ErrOption       = errors.New("value is not a permitted option")
)

// Value is one stored field value. Text holds text, enum and raw numeric
// input; Bool holds boolean fields. Derived marks values written by import or
// automation rather than by the clinician.
type Value struct {
	Kind    Kind   `json:"kind"`
	Text    string `json:"text,omitempty"`
	Bool    bool   `json:"bool,omitempty"`
	Derived bool   `json:"derived,omitempty"`
}

// Interface returns the value in its natural JSON shape.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		if n, ok := ParseNumber(v.Text); ok && FormatNumber(n) == strings.TrimSpace(v.Text) {
			return n
		}
		return v.Text
	default:
		return v.Text
	}
}

// ClinicalState is the single source of truth for one review. Absent fields
// are unknown; they are never read as false or zero.
type ClinicalState struct {
	values  map[string]Value
	Devices []DeviceEntry
}

func New() *ClinicalState {
	return &ClinicalState{values: make(map[string]Value)}
}

// Get returns the stored value of a field.
func (s *ClinicalState) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Has reports whether the field carries a value.
func (s *ClinicalState) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Text returns the raw text of a field, or "" when unset or boolean.
func (s *ClinicalState) Text(name string) string {
	v, ok := s.values[name]
	if !ok || v.Kind == KindBool {
		return ""
	}
	return v.Text
}

// Num parses a field with ParseNumber.
func (s *ClinicalState) Num(name string) (float64, bool) {
	return ParseNumber(s.Text(name))
}

// NumOr returns the first of names that parses to a non-zero number.
func (s *ClinicalState) NumOr(names ...string) (float64, bool) {
	for _, n := range names {
		if v, ok := s.Num(n); ok && v != 0 {
			return v, true
		}
	}
	return 0, false
}

// Flag is true only when a boolean field is explicitly true.
func (s *ClinicalState) Flag(name string) bool {
	v, ok := s.values[name]
	return ok && v.Kind == KindBool && v.Bool
}

// IsFalse is true only when a boolean field is explicitly false.
func (s *ClinicalState) IsFalse(name string) bool {
	v, ok := s.values[name]
	return ok && v.Kind == KindBool && !v.Bool
}

// Applies reports whether a field's gate, if any, is open.
func (s *ClinicalState) Applies(name string) bool {
	d, ok := registry[name]
	if !ok || d.Gate == "" {
		return true
	}
	return s.Flag(d.Gate) && s.Applies(d.Gate)
}

// GatedFlag is Flag for a field whose gate is open.
func (s *ClinicalState) GatedFlag(name string) bool {
	return s.Applies(name) && s.Flag(name)
}

// GatedText is Text for a field whose gate is open.
func (s *ClinicalState) GatedText(name string) string {
	if !s.Applies(name) {
		return ""
	}
	return s.Text(name)
}

// Set converts raw into the field's kind, stores it and mirrors it onto any
// synchronized partner. A nil raw or an empty string unsets the field. The
// returned names are every field whose stored value changed.
func (s *ClinicalState) Set(name string, raw interface{}, derived bool) ([]string, error) {
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	v, unset, err := coerce(d, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if unset {
		return s.Unset(name), nil
	}
	v.Derived = derived

	var changed []string
	if s.put(name, v) {
		changed = append(changed, name)
	}
	if partner, ok := Partner(name); ok {
		if s.put(partner, v) {
			changed = append(changed, partner)
		}
	}
	return changed, nil
}

// SetBool stores a boolean and its mirror. Unknown or non-boolean fields are
// ignored.
func (s *ClinicalState) SetBool(name string, b bool, derived bool) []string {
	changed, _ := s.Set(name, b, derived)
	return changed
}

// SetText stores a text, number or enum value and its mirror.
func (s *ClinicalState) SetText(name, text string, derived bool) []string {
	changed, _ := s.Set(name, text, derived)
	return changed
}

// Unset removes a field and its mirror.
func (s *ClinicalState) Unset(name string) []string {
	var changed []string
	if _, ok := s.values[name]; ok {
		delete(s.values, name)
		changed = append(changed, name)
	}
	if partner, ok := Partner(name); ok {
		if _, ok := s.values[partner]; ok {
			delete(s.values, partner)
			changed = append(changed, partner)
		}
	}
	return changed
}

func (s *ClinicalState) put(name string, v Value) bool {
	old, ok := s.values[name]
	s.values[name] = v
	return !ok || old.Text != v.Text || old.Bool != v.Bool || old.Kind != v.Kind
}

// Clear resets every field and device.
func (s *ClinicalState) Clear() {
	s.values = make(map[string]Value)
	s.Devices = nil
}

// Len returns the number of populated fields.
func (s *ClinicalState) Len() int {
	return len(s.values)
}

// Names returns the populated field names in sorted order.
func (s *ClinicalState) Names() []string {
	out := make([]string, 0, len(s.values))
	for n := range s.values {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (s *ClinicalState) Clone() *ClinicalState {
	c := New()
	for k, v := range s.values {
		c.values[k] = v
	}
	if s.Devices != nil {
		c.Devices = append([]DeviceEntry(nil), s.Devices...)
	}
	return c
}

// Values returns the populated fields in their natural JSON shape.
func (s *ClinicalState) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v.Interface()
	}
	return out
}

func coerce(d FieldDef, raw interface{}) (Value, bool, error) {
	if raw == nil {
		return Value{}, true, nil
	}
	switch d.Kind {
	case KindBool:
		switch x := raw.(type) {
		case bool:
			return Value{Kind: KindBool, Bool: x}, false, nil
		case string:
			if strings.TrimSpace(x) == "" {
				return Value{}, true, nil
			}
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return Value{}, false, ErrKind
			}
			return Value{Kind: KindBool, Bool: b}, false, nil
		}
		return Value{}, false, ErrKind
	case KindNumber:
		switch x := raw.(type) {
		case float64:
			return Value{Kind: KindNumber, Text: FormatNumber(x)}, false, nil
		case int:
			return Value{Kind: KindNumber, Text: strconv.Itoa(x)}, false, nil
		case string:
			if strings.TrimSpace(x) == "" {
				return Value{}, true, nil
			}
			return Value{Kind: KindNumber, Text: strings.TrimSpace(x)}, false, nil
		}
		return Value{}, false, ErrKind
	case KindEnum:
		x, ok := raw.(string)
		if !ok {
			return Value{}, false, ErrKind
		}
		if strings.TrimSpace(x) == "" {
			return Value{}, true, nil
		}
		opt, ok := d.option(strings.TrimSpace(x))
		if !ok {
			return Value{}, false, ErrOption
		}
		return Value{Kind: KindEnum, Text: opt}, false, nil
	default:
		switch x := raw.(type) {
		case string:
			if x == "" {
				return Value{}, true, nil
			}
			return Value{Kind: KindText, Text: x}, false, nil
		case float64:
			return Value{Kind: KindText, Text: FormatNumber(x)}, false, nil
		}
		return Value{}, false, ErrKind
	}
}

type snapshotJSON struct {
	Fields  map[string]Value `json:"fields"`
	Devices []DeviceEntry    `json:"devices,omitempty"`
}

// MarshalJSON encodes the state as a snapshot document.
func (s *ClinicalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{Fields: s.values, Devices: s.Devices})
}

// UnmarshalJSON restores a snapshot document. Fields no longer in the
// registry are dropped.
func (s *ClinicalState) UnmarshalJSON(data []byte) error {
	var doc snapshotJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.values = make(map[string]Value, len(doc.Fields))
	for k, v := range doc.Fields {
		if d, ok := registry[k]; ok && d.Kind == v.Kind {
			s.values[k] = v
		}
	}
	s.Devices = doc.Devices
	return nil
}
