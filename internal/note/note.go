// Package note defines the core data model for clinical progress notes:
// typed, timestamped note records, resident identity normalization, the
// declarative note formats, and marker-delimited field extraction.
package note

import (
	"strings"
	"time"
)

// Note types as they appear in the source documents. The set is closed per
// format; unrecognized type lines cause the region to be dropped upstream.
const (
	TypeIncidentFalls     = "Incident - Falls"
	TypePostFallNursing   = "Post Fall - Nursing"
	TypeBehaviourIncident = "Behaviour - Responsive Behaviour"
	TypeBehaviourFollowUp = "Behaviour - Follow up"
	TypeFamilyInvolvement = "Family/Resident Involvement"
	TypePhysicianNote     = "Physician Note"
	TypeRnaoAssessment    = "RNAO - Post Fall Assessment"
	TypeBehaviourNote     = "Behaviour Note"
)

// Sentinel values for undocumented fields. Downstream consumers (dashboards,
// re-runs) match on these exact strings, including the repeated suffix tiers,
// so they must never be rewritten.
const (
	NoProgress  = "No Progress Note Found Within 24hrs of RIM"
	NoProgress2 = NoProgress + " Within 24hrs of RIM"
	NoProgress3 = NoProgress2 + " Within 24hrs of RIM"

	// NoInjury marks an empty injury set.
	NoInjury = "No Injury"

	// NoPreviousInjuries marks a note with no carryover from a prior run.
	NoPreviousInjuries = "No Previous Injuries"
)

// EffectiveLayout is the timestamp format used in note headers and the
// extracted note table ("Effective Date" column). Minute precision.
const EffectiveLayout = "01/02/2006 15:04"

// Note is one atomic unit of clinical documentation.
type Note struct {
	Resident    string    // cleaned "Last, First"
	EffectiveAt time.Time // minute precision
	Type        string
	RawText     string

	// Injuries is the derived injury label list ("No Injury" when empty),
	// populated by the injury enrichment pass.
	Injuries string

	// PrevInjuries carries injuries detected for the identical note in a
	// previous run ("No Previous Injuries" when none).
	PrevInjuries string

	// Page records the source page of the note's first line, for stable
	// ordering of same-minute notes.
	Page int
}

// IsSentinel reports whether s is one of the no-progress sentinel values.
// Tier-2 and tier-3 contain tier-1, so a containment check covers all three.
func IsSentinel(s string) bool {
	return strings.Contains(s, NoProgress)
}

// CleanName normalizes a resident name to canonical "Last, First" form.
// Identity comparisons are case-insensitive; use SameResident.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if last, first, ok := strings.Cut(name, ","); ok {
		return strings.TrimSpace(last) + ", " + strings.TrimSpace(first)
	}
	return name
}

// SameResident reports whether two names refer to the same resident.
func SameResident(a, b string) bool {
	return strings.EqualFold(CleanName(a), CleanName(b))
}
