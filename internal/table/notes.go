package table

import (
	"fmt"
	"time"

	"github.com/carelinehq/notelink/internal/note"
)

// Note table column names. The injury columns appear only on fall-format
// exports.
const (
	colEffectiveDate = "Effective Date"
	colResidentName  = "Resident Name"
	colType          = "Type"
	colData          = "Data"
	colInjuries      = "Injuries"
	colPrevInjuries  = "Previous_Injuries"
)

// NotesToTable renders extracted notes as the note table, most recent first
// order preserved from the input slice. withInjuries adds the two injury
// columns.
func NotesToTable(notes []note.Note, withInjuries bool) *Table {
	cols := []string{colEffectiveDate, colResidentName, colType, colData}
	if withInjuries {
		cols = append(cols, colInjuries, colPrevInjuries)
	}

	t := &Table{Columns: cols}
	for i := range notes {
		n := &notes[i]
		row := []string{
			n.EffectiveAt.Format(note.EffectiveLayout),
			n.Resident,
			n.Type,
			n.RawText,
		}
		if withInjuries {
			injuries := n.Injuries
			if injuries == "" {
				injuries = note.NoInjury
			}
			prev := n.PrevInjuries
			if prev == "" {
				prev = note.NoPreviousInjuries
			}
			row = append(row, injuries, prev)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ReadNotes loads a previously written note table. Rows with an unparsable
// timestamp are skipped with an error count rather than failing the load;
// carryover matching needs only the parsable rows.
func ReadNotes(path string) ([]note.Note, int, error) {
	t, err := ReadCSV(path)
	if err != nil {
		return nil, 0, err
	}

	dateIdx := t.ColumnIndex(colEffectiveDate)
	nameIdx := t.ColumnIndex(colResidentName)
	typeIdx := t.ColumnIndex(colType)
	dataIdx := t.ColumnIndex(colData)
	if dateIdx < 0 || nameIdx < 0 || typeIdx < 0 || dataIdx < 0 {
		return nil, 0, fmt.Errorf("note table %s: missing required columns", path)
	}
	injIdx := t.ColumnIndex(colInjuries)
	prevIdx := t.ColumnIndex(colPrevInjuries)

	var notes []note.Note
	skipped := 0
	for _, row := range t.Rows {
		at, err := time.Parse(note.EffectiveLayout, row[dateIdx])
		if err != nil {
			skipped++
			continue
		}
		n := note.Note{
			EffectiveAt: at,
			Resident:    row[nameIdx],
			Type:        row[typeIdx],
			RawText:     row[dataIdx],
		}
		if injIdx >= 0 {
			n.Injuries = row[injIdx]
		}
		if prevIdx >= 0 {
			n.PrevInjuries = row[prevIdx]
		}
		notes = append(notes, n)
	}
	return notes, skipped, nil
}
