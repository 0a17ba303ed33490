// Package pipeline runs the full batch: route exported files to a facility,
// segment the page text into notes, enrich and deduplicate them, merge against
// the authoritative incident table, and persist the results. One file failing
// never aborts the batch; failures are collected into the run summary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/carelinehq/notelink/internal/classify"
	"github.com/carelinehq/notelink/internal/config"
	"github.com/carelinehq/notelink/internal/correlate"
	"github.com/carelinehq/notelink/internal/injury"
	"github.com/carelinehq/notelink/internal/llm"
	"github.com/carelinehq/notelink/internal/merge"
	"github.com/carelinehq/notelink/internal/note"
	"github.com/carelinehq/notelink/internal/segment"
	"github.com/carelinehq/notelink/internal/store"
	"github.com/carelinehq/notelink/internal/table"
	"go.uber.org/zap"
)

// ErrNoAuthoritativeTable marks a notes file processed without its incident
// table: count reconciliation is skipped for that file and the condition is
// logged, never fatal.
var ErrNoAuthoritativeTable = errors.New("authoritative incident table missing or unreadable")

// Options configures a Runner.
type Options struct {
	Registry *config.Registry
	Store    *store.Store // optional archive; nil disables persistence and carryover
	Provider llm.Provider // optional classifier; nil means fallbacks everywhere
	OutDir   string
	Logger   *zap.Logger
}

// Runner executes the batch pipeline for one or more exported files.
type Runner struct {
	reg        *config.Registry
	store      *store.Store
	classifier *classify.Classifier
	detector   *injury.Detector
	outDir     string
	log        *zap.Logger
}

// New builds a Runner. The provider, when present, is wrapped with the
// default inter-call pacing so classifier traffic respects the remote rate
// limit.
func New(opts Options) *Runner {
	r := &Runner{
		reg:    opts.Registry,
		store:  opts.Store,
		outDir: opts.OutDir,
		log:    opts.Logger,
	}
	if r.reg == nil {
		r.reg = config.DefaultRegistry()
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if opts.Provider != nil {
		paced := llm.NewPaced(opts.Provider, 0)
		r.classifier = classify.New(paced)
		r.detector = injury.NewDetector(paced)
	}
	return r
}

// FileError records one non-fatal failure during a batch run.
type FileError struct {
	File    string
	Stage   string
	Message string
}

// Summary reports what a batch run did.
type Summary struct {
	Files         int
	Processed     int
	Skipped       int
	Notes         int
	Incidents     int
	DedupeRemoved int
	InjuryErrors  int
	Errors        []FileError
}

// Add merges another Summary into this one.
func (s *Summary) Add(other *Summary) {
	s.Files += other.Files
	s.Processed += other.Processed
	s.Skipped += other.Skipped
	s.Notes += other.Notes
	s.Incidents += other.Incidents
	s.DedupeRemoved += other.DedupeRemoved
	s.InjuryErrors += other.InjuryErrors
	s.Errors = append(s.Errors, other.Errors...)
}

// Run processes every notes export (*.txt) under dir. The authoritative
// incident table for a file is its sibling "<stem>_incidents.csv"; a missing
// table skips reconciliation for that file only.
func (r *Runner) Run(ctx context.Context, dir string) (*Summary, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(paths)

	total := &Summary{}
	for _, p := range paths {
		stem := strings.TrimSuffix(p, filepath.Ext(p))
		incidentsPath := stem + "_incidents.csv"
		if _, err := os.Stat(incidentsPath); err != nil {
			incidentsPath = ""
		}

		sum, err := r.ProcessFile(ctx, p, incidentsPath)
		if err != nil {
			r.log.Warn("file skipped",
				zap.String("file", filepath.Base(p)),
				zap.Error(err))
			total.Files++
			total.Skipped++
			total.Errors = append(total.Errors, FileError{
				File:    filepath.Base(p),
				Stage:   "process",
				Message: err.Error(),
			})
			continue
		}
		total.Add(sum)
	}
	return total, nil
}

// ProcessFile runs the pipeline for a single notes export. incidentsPath may
// be empty, in which case deduplication and merging are skipped and the
// condition is reported as ErrNoAuthoritativeTable in the summary.
func (r *Runner) ProcessFile(ctx context.Context, notesPath, incidentsPath string) (*Summary, error) {
	sum := &Summary{Files: 1}

	route, err := r.reg.RouteFile(notesPath)
	if err != nil {
		return nil, fmt.Errorf("routing %s: %w", filepath.Base(notesPath), err)
	}
	format := note.FormatByName(route.Chain.Format)
	if format == nil {
		return nil, fmt.Errorf("chain %s names unknown format %q", route.Chain.Name, route.Chain.Format)
	}

	data, err := os.ReadFile(notesPath)
	if err != nil {
		return nil, fmt.Errorf("reading notes export: %w", err)
	}
	pages := strings.Split(string(data), "\f")

	seg := segment.New(nil)
	notes, segRes := seg.Segment(pages)
	segment.CleanBodies(notes)
	if format == note.FallsFormat {
		reclassified := segment.ReclassifyHollowFalls(notes)
		if reclassified > 0 {
			r.log.Info("hollow falls forms reclassified",
				zap.String("file", filepath.Base(notesPath)),
				zap.Int("count", reclassified))
		}
	}
	sortNotes(notes)
	sum.Notes = len(notes)

	if dropped := segRes.NoType + segRes.Ambiguous + segRes.NoDate; dropped > 0 {
		r.log.Info("regions dropped during segmentation",
			zap.String("file", filepath.Base(notesPath)),
			zap.Int("no_type", segRes.NoType),
			zap.Int("ambiguous", segRes.Ambiguous),
			zap.Int("no_date", segRes.NoDate))
	}

	// Previous-run injury carryover from the archived notes of the prior day.
	if r.store != nil {
		prev, err := r.store.NotesForDay(ctx, route.Facility.Key, route.Date.AddDate(0, 0, -1))
		if err != nil {
			r.log.Warn("carryover lookup failed", zap.Error(err))
		} else if carried := injury.MarkPrevious(notes, prev); carried > 0 {
			r.log.Info("previous-run injuries carried", zap.Int("count", carried))
		}
	}

	if r.detector != nil && format == note.FallsFormat {
		res, err := r.detector.Enrich(ctx, notes)
		if err != nil {
			r.log.Warn("injury enrichment failed", zap.Error(err))
		}
		sum.InjuryErrors = res.Errors
	}

	var incidents []table.Incident
	if incidentsPath == "" {
		r.log.Warn("reconciliation skipped",
			zap.String("file", filepath.Base(notesPath)),
			zap.Error(ErrNoAuthoritativeTable))
	} else {
		incidents, err = table.ReadIncidents(incidentsPath)
		if err != nil {
			incidents = nil
			r.log.Warn("reconciliation skipped",
				zap.String("file", filepath.Base(incidentsPath)),
				zap.Error(fmt.Errorf("%w: %v", ErrNoAuthoritativeTable, err)))
		} else {
			counts := correlate.DayCounts(table.CountByDay(incidents))
			var dres correlate.DedupeResult
			notes, dres = correlate.Dedupe(notes, format.PrimaryType, counts)
			sum.DedupeRemoved = dres.Removed
		}
	}
	sum.Incidents = len(incidents)

	if r.store != nil {
		if _, err := r.store.SaveNotes(ctx, route.Facility.Key, route.Date, notes); err != nil {
			r.log.Warn("archiving notes failed", zap.Error(err))
		}
	}

	stem := strings.TrimSuffix(filepath.Base(notesPath), filepath.Ext(notesPath))
	notesTable := table.NotesToTable(notes, format == note.FallsFormat)
	if err := notesTable.WriteCSV(r.outPath(stem + "_notes.csv")); err != nil {
		return nil, fmt.Errorf("writing notes table: %w", err)
	}

	if len(incidents) > 0 {
		merged, err := r.mergeIncidents(ctx, route, format, incidents, notes)
		if err != nil {
			return nil, err
		}
		if r.store != nil {
			if _, err := r.store.SaveIncidents(ctx, route.Facility.Key, merged); err != nil {
				r.log.Warn("archiving incidents failed", zap.Error(err))
			}
		}
		if err := merged.WriteCSV(r.outPath(stem + "_merged.csv")); err != nil {
			return nil, fmt.Errorf("writing merged table: %w", err)
		}
	}

	if route.Chain.SupportsFollowUp {
		followUps := merge.BuildFollowUps(notes)
		if err := followUps.WriteCSV(r.outPath(stem + "_followups.csv")); err != nil {
			return nil, fmt.Errorf("writing follow-up table: %w", err)
		}
	}

	sum.Processed = 1
	r.log.Info("file processed",
		zap.String("file", filepath.Base(notesPath)),
		zap.String("facility", route.Facility.Key),
		zap.Int("notes", sum.Notes),
		zap.Int("incidents", sum.Incidents),
		zap.Int("deduped", sum.DedupeRemoved))
	return sum, nil
}

// mergeIncidents picks the merge strategy per format: falls chains get the
// correlation report, behaviour chains get the field merge.
func (r *Runner) mergeIncidents(ctx context.Context, route config.Route, format *note.Format, incidents []table.Incident, notes []note.Note) (*table.Table, error) {
	if format == note.FallsFormat {
		return r.fallsReport(ctx, incidents, notes, mergeWindow(route, format)), nil
	}

	var cls merge.Classifier
	if r.classifier != nil {
		cls = r.classifier
	}
	merged, mres, err := merge.New(format, cls).Merge(ctx, incidents, notes, merge.Opts{
		WindowHours: route.Facility.WindowHours,
	})
	if err != nil {
		return nil, fmt.Errorf("merging incidents: %w", err)
	}
	if mres.ClassifierErrors > 0 {
		r.log.Warn("classifier fallbacks applied", zap.Int("count", mres.ClassifierErrors))
	}
	return merged, nil
}

// mergeWindow resolves the join window: facility override, else the format
// default.
func mergeWindow(route config.Route, format *note.Format) time.Duration {
	hours := format.MergeWindowHours
	if route.Facility.WindowHours > 0 {
		hours = route.Facility.WindowHours
	}
	return time.Duration(hours) * time.Hour
}

func (r *Runner) outPath(name string) string {
	if r.outDir == "" {
		return name
	}
	return filepath.Join(r.outDir, name)
}

// FormatSummary renders a run summary for CLI output.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Files:      %d processed, %d skipped\n", s.Processed, s.Skipped)
	fmt.Fprintf(&b, "Notes:      %d segmented\n", s.Notes)
	fmt.Fprintf(&b, "Incidents:  %d\n", s.Incidents)
	if s.DedupeRemoved > 0 {
		fmt.Fprintf(&b, "Deduped:    %d over-reported notes removed\n", s.DedupeRemoved)
	}
	if s.InjuryErrors > 0 {
		fmt.Fprintf(&b, "Injuries:   %d detection calls fell back\n", s.InjuryErrors)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  skipped %s: %s\n", e.File, e.Message)
	}
	return b.String()
}

// sortNotes orders a segmented slice by effective time, page order breaking
// ties, which the correlator requires.
func sortNotes(notes []note.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if !notes[i].EffectiveAt.Equal(notes[j].EffectiveAt) {
			return notes[i].EffectiveAt.Before(notes[j].EffectiveAt)
		}
		return notes[i].Page < notes[j].Page
	})
}
