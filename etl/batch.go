package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/db"
)

// batcher wraps inserts for one table in transactions of at most size rows
// and logs progress every 5 seconds.
type batcher struct {
	ctx   context.Context
	conn  *sql.DB
	table string
	size  int

	tx      *sql.Tx
	q       *db.Queries
	pending int
	rows    int64
	start   time.Time
	lastLog time.Time
}

func newBatcher(ctx context.Context, conn *sql.DB, table string, size int) (*batcher, error) {
	if size <= 0 {
		size = 5000
	}
	b := &batcher{ctx: ctx, conn: conn, table: table, size: size, start: time.Now(), lastLog: time.Now()}
	if err := b.begin(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *batcher) begin() error {
	tx, err := b.conn.BeginTx(b.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	b.tx = tx
	b.q = db.New(tx)
	return nil
}

// done counts one stored row and commits when the batch is full.
func (b *batcher) done() error {
	b.rows++
	b.pending++
	if b.pending >= b.size {
		if err := b.tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", b.table, err)
		}
		b.pending = 0
		if err := b.begin(); err != nil {
			return err
		}
	}
	if time.Since(b.lastLog) >= 5*time.Second {
		elapsed := time.Since(b.start).Seconds()
		logrus.Infof("  progress: %s %d rows (%.0f rows/s)", b.table, b.rows, float64(b.rows)/elapsed)
		b.lastLog = time.Now()
	}
	return nil
}

func (b *batcher) finish() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("final commit %s: %w", b.table, err)
	}
	logrus.WithFields(logrus.Fields{
		"table":   b.table,
		"rows":    b.rows,
		"elapsed": time.Since(b.start).Round(time.Millisecond),
	}).Info("table loaded")
	return nil
}

func (b *batcher) rollback() {
	b.tx.Rollback()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
