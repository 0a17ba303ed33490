package note

import (
	"errors"
	"strings"
)

// ErrFieldNotFound is returned when a field's marker does not occur in the
// note text. Callers recover locally by substituting a sentinel default.
var ErrFieldNotFound = errors.New("field marker not found in note text")

// FieldSpec declares one extractable field of a note format: the literal
// marker that starts the field's value and the set of markers that can end
// it. The value runs from the end of Marker to the nearest occurrence of any
// successor — not a single fixed next marker, because source documents omit
// markers freely.
type FieldSpec struct {
	Name       string
	Marker     string
	Successors []string
}

// Format is a declarative description of one note layout. New layouts are
// data, not control flow: add a Format, not a branch.
type Format struct {
	Name string

	// PrimaryType anchors correlation scans; a second note of this type
	// terminates the backward window.
	PrimaryType string

	// FollowUpType is the auxiliary type counted and scanned between
	// primaries.
	FollowUpType string

	Fields []FieldSpec

	// MergeWindow is the default correlation window (hours) for joining the
	// incident table against this format's processed notes.
	MergeWindowHours int

	byMarker map[string]*FieldSpec
}

// Field returns the spec for a marker, or nil if the format does not declare
// it.
func (f *Format) Field(marker string) *FieldSpec {
	if f.byMarker == nil {
		f.byMarker = make(map[string]*FieldSpec, len(f.Fields))
		for i := range f.Fields {
			f.byMarker[f.Fields[i].Marker] = &f.Fields[i]
		}
	}
	return f.byMarker[marker]
}

// Extract returns the value of the field started by marker.
//
// The value is the substring from the end of the marker to the nearest (by
// character offset) successor marker occurring after it; if no successor
// occurs, to end of text. A present-but-blank field is indistinguishable from
// an undocumented one, so a trimmed-empty result yields the sentinel default
// rather than "".
func (f *Format) Extract(text, marker string) (string, error) {
	start := strings.Index(text, marker)
	if start < 0 {
		return "", ErrFieldNotFound
	}
	start += len(marker)

	rest := text[start:]
	end := len(rest)
	if spec := f.Field(marker); spec != nil {
		for _, succ := range spec.Successors {
			if pos := strings.Index(rest, succ); pos >= 0 && pos < end {
				end = pos
			}
		}
	}

	value := strings.TrimSpace(rest[:end])
	if value == "" {
		return NoProgress3, nil
	}
	return value, nil
}

// ExtractOr extracts a field, substituting the sentinel default when the
// marker is absent.
func (f *Format) ExtractOr(text, marker string) string {
	value, err := f.Extract(text, marker)
	if err != nil {
		return NoProgress3
	}
	return value
}

// FallsHeaders is the ordered header list of the falls incident layout. It
// drives body cleanup, hollow-note detection, and injury verification
// sectioning.
var FallsHeaders = []string{
	"Description and Time of Fall :",
	"History of Falls :",
	"Resident activity/needs at the time of the fall (i.e. getting in out of bed, chair, in pain etc.) :",
	"Location of Fall (room,dining room, toilet,shower etc) :",
	"What foot wear did the resident wear? :",
	"Physical Status of Resident at time of fall (i.e. pain, dizziness, change in lab values, drop in BS) :",
	"What mechanical devices were in use (i.e. high low bed, senor etc) :",
	"Environmental status at time of fall (i.e. w/c locked, room light, call bell accessible, etc.) :",
	"List any medication changes within the past week :",
	"Note if resident is on any anticoagulants: :",
	"Head to Toe Assessment findings: (soft tissue injury, bruising, laceration, hematoma, HIR etc.) :",
	"Range of Motion and Weight bearing status :",
	"Fracture (Shortening of limbs & external and/or internal rotation of limbs) :",
	"Current Status of Resident (is it safe to transfer resident?) :",
	"Interventions in place to prevent further falls :",
	"POA aware and response of POA :",
	"Notify Pharmacist if applicable :",
	"Physio Referral completed :",
}

// fallsFields builds the falls FieldSpec list from the ordered header list:
// each header's successors are all later headers, so a missing header never
// swallows the next section.
func fallsFields() []FieldSpec {
	fields := make([]FieldSpec, len(FallsHeaders))
	for i, h := range FallsHeaders {
		name := strings.TrimSpace(strings.TrimSuffix(h, ":"))
		if cut := strings.IndexAny(name, "(:"); cut > 0 {
			name = strings.TrimSpace(name[:cut])
		}
		fields[i] = FieldSpec{
			Name:       name,
			Marker:     h,
			Successors: FallsHeaders[i+1:],
		}
	}
	return fields
}

// FallsFormat describes the falls incident layout: primary falls notes with
// nursing follow-ups.
var FallsFormat = &Format{
	Name:             "falls",
	PrimaryType:      TypeIncidentFalls,
	FollowUpType:     TypePostFallNursing,
	Fields:           fallsFields(),
	MergeWindowHours: 20,
}

// BehaviourFormat describes the responsive-behaviour layout used by the
// behaviour dashboards: nine marker-delimited fields.
var BehaviourFormat = &Format{
	Name:             "behaviour",
	PrimaryType:      TypeBehaviourIncident,
	FollowUpType:     TypeBehaviourFollowUp,
	MergeWindowHours: 20,
	Fields: []FieldSpec{
		{Name: "behaviour_type", Marker: "Type of Behaviour :", Successors: []string{"Antecedent/Triggers", "Page"}},
		{Name: "triggers", Marker: "Antecedent/Triggers :", Successors: []string{"Describe the behaviour", "Page"}},
		{Name: "description", Marker: "Describe the behaviour :", Successors: []string{"Disruptiveness", "Page"}},
		{Name: "consequences", Marker: "Disruptiveness (Data)/Consequences to the behaviour :", Successors: []string{"Interventions", "Page"}},
		{Name: "interventions", Marker: "Interventions (review/update care plan) (Action) :", Successors: []string{"Change in medication", "Page"}},
		{Name: "medication_changes", Marker: "Change in medication :", Successors: []string{"What are the risks and causes", "Page"}},
		{Name: "risks", Marker: "What are the risks and causes :", Successors: []string{"Outcome(s)(Result)", "Page"}},
		{Name: "outcome", Marker: "Outcome(s)(Result) :", Successors: []string{"Substitute Decision Maker", "Page"}},
		{Name: "poa_notified", Marker: "Substitute Decision Maker notified (if not, explain) :", Successors: []string{"Page", "Range"}},
	},
}

// MinimalFormat describes the compact "Behaviour Note" layout some facilities
// export: five fields, 24h merge window.
var MinimalFormat = &Format{
	Name:             "minimal",
	PrimaryType:      TypeBehaviourNote,
	FollowUpType:     TypeBehaviourFollowUp,
	MergeWindowHours: 24,
	Fields: []FieldSpec{
		{Name: "description", Marker: "Behaviour Displayed :", Successors: []string{"Intervention :", "Time, Frequency", "Page"}},
		{Name: "interventions", Marker: "Intervention :", Successors: []string{"Time, Frequency", "Evaluation of Intervention", "Page"}},
		{Name: "time_frequency", Marker: "Time, Frequency and # of Staff :", Successors: []string{"Evaluation of Intervention", "Resident Response", "Page"}},
		{Name: "evaluation", Marker: "Evaluation of Intervention :", Successors: []string{"Resident Response", "Page", "________________"}},
		{Name: "outcome", Marker: "Resident Response :", Successors: []string{"Page", "________________", "SIGNED]"}},
	},
}

// FormatByName resolves a registry format name. Unknown names return nil.
func FormatByName(name string) *Format {
	switch name {
	case FallsFormat.Name:
		return FallsFormat
	case BehaviourFormat.Name:
		return BehaviourFormat
	case MinimalFormat.Name:
		return MinimalFormat
	}
	return nil
}
