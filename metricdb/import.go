package metricdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"
)

// DecodeRevisions reads a JSON array of RevisionMetrics.
func DecodeRevisions(r io.Reader) ([]RevisionMetrics, error) {
	var records []RevisionMetrics
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&records); err != nil {
		return nil, fmt.Errorf("unable to decode revisions: %v", err)
	}
	return records, nil
}

type ImportResult struct {
	Inserted int
	Skipped  int
}

// Import stores records in revision order, committing every maxBatch
// statements. Revisions already present are skipped.
func (d *DB) Import(ctx context.Context, records []RevisionMetrics, maxBatch int64) (ImportResult, error) {
	var result ImportResult
	start := time.Now()
	defer func() {
		klog.Infof("Imported %d revisions, skipped %d, in %s", result.Inserted, result.Skipped, time.Now().Sub(start).Truncate(time.Second/10))
	}()

	SortRevisions(records)

	b, err := d.NewBatchInserter(maxBatch)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			klog.Errorf("unable to release import statements: %v", err)
		}
	}()
	if err := func() error {
		for i, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			date, err := time.ParseInLocation(DateLayout, record.Date, d.location)
			if err != nil {
				return fmt.Errorf("revision %d has a malformed date %q: %v", record.Revision, record.Date, err)
			}
			inserted, err := b.InsertRevision(record.Revision, date.Format(DateLayout))
			if err != nil {
				return fmt.Errorf("unable to insert revision %d: %v", record.Revision, err)
			}
			if !inserted {
				klog.V(4).Infof("revision %d already exists, skipping", record.Revision)
				result.Skipped++
				continue
			}
			if err := b.InsertMetrics(record.Revision, record.Metrics); err != nil {
				return fmt.Errorf("unable to insert metrics for revision %d: %w", record.Revision, err)
			}
			result.Inserted++
			if (i+1)%1000 == 0 {
				klog.Infof("DEBUG: Imported %d/%d revisions", i+1, len(records))
			}
		}
		return b.Flush()
	}(); err != nil {
		if abortErr := b.Abort(); abortErr != nil {
			klog.Errorf("unable to roll back import: %v", abortErr)
		}
		return ImportResult{}, err
	}
	return result, nil
}
