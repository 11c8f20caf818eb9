package metricdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type metricBatchInserter struct {
	db      *sqlx.DB
	dialect dialect

	insertRevision *sqlx.Stmt
	insertMetrics  *sqlx.Stmt

	tx               *sqlx.Tx
	txInsertRevision *sqlx.Stmt
	txInsertMetrics  *sqlx.Stmt

	maxBatch int64
	inserted int64
}

func NewBatchInserter(db *sqlx.DB, maxBatch int64) (*metricBatchInserter, error) {
	if maxBatch <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	b := &metricBatchInserter{
		db:       db,
		dialect:  dialectFor(db.DriverName()),
		maxBatch: maxBatch,
	}
	return b, nil
}

func (b *metricBatchInserter) Flush() error {
	tx := b.tx
	if tx == nil {
		return nil
	}

	b.tx = nil
	b.inserted = 0

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// Abort rolls back the open batch, if any.
func (b *metricBatchInserter) Abort() error {
	tx := b.tx
	if tx == nil {
		return nil
	}
	b.tx = nil
	b.inserted = 0
	return tx.Rollback()
}

// Close releases the prepared statements. An open batch must be flushed or
// aborted first.
func (b *metricBatchInserter) Close() error {
	var errs []error
	for _, stmt := range []**sqlx.Stmt{&b.insertRevision, &b.insertMetrics} {
		if *stmt == nil {
			continue
		}
		if err := (*stmt).Close(); err != nil {
			errs = append(errs, err)
		}
		*stmt = nil
	}
	return utilerrors.NewAggregate(errs)
}

func (b *metricBatchInserter) txForInsert() (*sqlx.Tx, error) {
	if b.tx != nil {
		if b.inserted < b.maxBatch {
			return b.tx, nil
		}
		if err := b.Flush(); err != nil {
			return nil, err
		}
	}

	tx, err := b.db.Beginx()
	if err != nil {
		return nil, err
	}
	b.txInsertRevision = nil
	b.txInsertMetrics = nil
	b.tx = tx
	return tx, nil
}

// InsertRevision records the date of a revision. Existing revisions are left
// untouched and reported as not inserted.
func (b *metricBatchInserter) InsertRevision(revision int64, date string) (bool, error) {
	tx, err := b.txForInsert()
	if err != nil {
		return false, err
	}
	if b.insertRevision == nil {
		b.insertRevision, err = b.db.Preparex(b.dialect.insertIgnore + " revisions (revision, date) VALUES(?, ?)")
		if err != nil {
			return false, err
		}
	}
	if b.txInsertRevision == nil {
		b.txInsertRevision = tx.Stmtx(b.insertRevision)
	}
	r, err := b.txInsertRevision.Exec(revision, date)
	if err != nil {
		return false, err
	}
	b.inserted++
	n, err := r.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertMetrics records the measurements of a revision. Columns missing from
// values are stored as NULL.
func (b *metricBatchInserter) InsertMetrics(revision int64, values map[Column]float64) error {
	for c := range values {
		if !knownColumns.Has(c) {
			return fmt.Errorf("%w %q for revision %d", ErrUnknownColumn, c, revision)
		}
	}
	tx, err := b.txForInsert()
	if err != nil {
		return err
	}
	columns := Columns()
	if b.insertMetrics == nil {
		names := make([]string, 0, len(columns)+1)
		names = append(names, "revision")
		for _, c := range columns {
			names = append(names, string(c))
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
		b.insertMetrics, err = b.db.Preparex(fmt.Sprintf("%s metrics (%s) VALUES(%s)", b.dialect.insertIgnore, strings.Join(names, ", "), placeholders))
		if err != nil {
			return err
		}
	}
	if b.txInsertMetrics == nil {
		b.txInsertMetrics = tx.Stmtx(b.insertMetrics)
	}
	args := make([]interface{}, 0, len(columns)+1)
	args = append(args, revision)
	for _, c := range columns {
		if v, ok := values[c]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	if _, err := b.txInsertMetrics.Exec(args...); err != nil {
		return err
	}
	b.inserted++
	return nil
}

// SortRevisions orders import records by revision number.
func SortRevisions(records []RevisionMetrics) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Revision < records[j].Revision })
}

type rh struct {
	rows *sqlx.Rows
	err  error
}

func RowsOf(rows *sqlx.Rows, err error) rh {
	return rh{
		rows: rows,
		err:  err,
	}
}

func (h rh) Every(values []interface{}, fn func()) error {
	if h.err != nil {
		return h.err
	}
	rows := h.rows
	defer rows.Close()
	for rows.Next() {
		if err := rows.Scan(values...); err != nil {
			return err
		}
		fn()
	}
	return rows.Err()
}
