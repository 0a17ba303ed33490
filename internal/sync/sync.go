// Package sync uploads merged incident tables to the remote dashboard store.
//
// Uploads replace a whole facility/year/month document, but manual edits made
// on the dashboard survive: records flagged as edited keep their edited
// fields across re-uploads, matched by (date, time, name).
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelinehq/notelink/internal/store"
	"github.com/carelinehq/notelink/internal/table"
)

// Record is one dashboard row.
type Record map[string]any

// DocStore is the remote document store surface: one document per
// facility/year/month holding the month's records.
type DocStore interface {
	Replace(ctx context.Context, facility, year, month string, records []Record) error
	Fetch(ctx context.Context, facility, year, month string) ([]Record, error)
}

// HTTPStore implements DocStore over a REST JSON API:
// GET/PUT {base}/{facility}/{year}/{month}.json
type HTTPStore struct {
	BaseURL   string
	AuthToken string
	Client    *http.Client
}

func (h *HTTPStore) url(facility, year, month string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", h.BaseURL, facility, year, month)
}

func (h *HTTPStore) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTPStore) do(req *http.Request) ([]byte, error) {
	if h.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.AuthToken)
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document store error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Fetch loads the current records for a month. A missing document is an
// empty month, not an error.
func (h *HTTPStore) Fetch(ctx context.Context, facility, year, month string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", h.url(facility, year, month), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	body, err := h.do(req)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

// Replace overwrites the month's document with the given records.
func (h *HTTPStore) Replace(ctx context.Context, facility, year, month string, records []Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "PUT", h.url(facility, year, month), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = h.do(req)
	return err
}

// Result summarizes an upload.
type Result struct {
	RunID     string
	Records   int
	Preserved int
}

// Uploader pushes merged tables to the document store, preserving manual
// edits and recording runs in the archive.
type Uploader struct {
	Store   DocStore
	Archive *store.Store // optional run bookkeeping
	Log     *zap.Logger
}

// Upload replaces the month's records. Existing records carrying update
// flags contribute their edited fields to the matching new records before
// the replace.
func (u *Uploader) Upload(ctx context.Context, facility, year, month string, records []Record) (Result, error) {
	res := Result{RunID: uuid.NewString(), Records: len(records)}
	log := u.log().With(
		zap.String("run_id", res.RunID),
		zap.String("facility", facility),
		zap.String("month", year+"-"+month),
	)

	if u.Archive != nil {
		err := u.Archive.BeginSyncRun(ctx, &store.SyncRun{
			ID: res.RunID, Facility: facility, Year: year, Month: month,
			Records: len(records), StartedAt: time.Now(),
		})
		if err != nil {
			return res, err
		}
	}

	existing, err := u.Store.Fetch(ctx, facility, year, month)
	if err != nil {
		u.finish(ctx, res, "failed")
		return res, fmt.Errorf("fetching existing records: %w", err)
	}

	res.Preserved = PreserveEdits(records, existing)
	log.Info("uploading records",
		zap.Int("records", len(records)),
		zap.Int("existing", len(existing)),
		zap.Int("preserved", res.Preserved),
	)

	if err := u.Store.Replace(ctx, facility, year, month, records); err != nil {
		u.finish(ctx, res, "failed")
		return res, fmt.Errorf("replacing records: %w", err)
	}

	u.finish(ctx, res, "complete")
	return res, nil
}

func (u *Uploader) finish(ctx context.Context, res Result, status string) {
	if u.Archive == nil {
		return
	}
	if err := u.Archive.FinishSyncRun(ctx, res.RunID, status, res.Records, res.Preserved); err != nil {
		u.log().Warn("recording sync run state", zap.Error(err))
	}
}

func (u *Uploader) log() *zap.Logger {
	if u.Log != nil {
		return u.Log
	}
	return zap.NewNop()
}

// RecordsFromTable converts a shaped table to dashboard records.
func RecordsFromTable(t *table.Table) []Record {
	records := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(Record, len(t.Columns))
		for i, col := range t.Columns {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}
	return records
}
