package sync

import (
	"fmt"
	"strings"
)

// updateFlagFields maps each dashboard edit flag to the field it protects.
// A flagged record's field was hand-corrected on the dashboard and must
// survive re-uploads.
var updateFlagFields = map[string]string{
	"isInjuryUpdated":         "injury",
	"isCauseUpdated":          "cause",
	"isHirUpdated":            "hir",
	"isHospitalUpdated":       "transfer_to_hospital",
	"isIncidentReportUpdated": "incidentReport",
	"isInterventionsUpdated":  "interventions",
	"isPhysicianRefUpdated":   "physicianRef",
	"isPoaContactedUpdated":   "poaContacted",
	"isPostFallNotesUpdated":  "postFallNotes",
	"isPtRefUpdated":          "ptRef",
}

// PreserveEdits copies manually edited fields from existing records onto the
// matching new records, carrying the flags along. Records match by
// (date, time, name), case-insensitive on the name. Returns how many new
// records inherited at least one edit.
func PreserveEdits(records, existing []Record) int {
	if len(existing) == 0 {
		return 0
	}

	byKey := make(map[string]Record, len(existing))
	for _, rec := range existing {
		byKey[recordKey(rec)] = rec
	}

	preserved := 0
	for _, rec := range records {
		old, ok := byKey[recordKey(rec)]
		if !ok {
			continue
		}
		touched := false
		for flag, field := range updateFlagFields {
			if !flagSet(old, flag) {
				continue
			}
			if v, ok := old[field]; ok {
				rec[field] = v
			}
			rec[flag] = old[flag]
			touched = true
		}
		if touched {
			preserved++
		}
	}
	return preserved
}

func recordKey(rec Record) string {
	return fmt.Sprintf("%v|%v|%v",
		rec["date"], rec["time"], strings.ToLower(fmt.Sprintf("%v", rec["name"])))
}

// flagSet tolerates the flag arriving as bool or string.
func flagSet(rec Record, flag string) bool {
	switch v := rec[flag].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return false
}
