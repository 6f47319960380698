package etl

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/facts"
	"saludfederada/icdgraph"
)

// recordReader is implemented by facts.Reader and cleanFactReader.
type recordReader interface {
	Next() ([]facts.Record, error)
	Close() error
}

func loadFacts(ctx context.Context, conn *sql.DB, src facts.Source, rr recordReader, size int) (int64, error) {
	b, err := newBatcher(ctx, conn, src.Table(), size)
	if err != nil {
		return 0, err
	}
	for {
		recs, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.rollback()
			return b.rows, err
		}
		for _, rec := range recs {
			arg := db.InsertFactParams{
				EntidadNorm:    nullStr(rec.Entity),
				EdadQuinquenal: nullStr(rec.AgeBand),
				Sexo:           nullStr(rec.Sex),
				Cie10Code:      rec.Code,
				Valor:          rec.Value,
			}
			if rec.Year != 0 {
				arg.Anio = sql.NullInt64{Int64: int64(rec.Year), Valid: true}
			}
			if err := b.q.InsertFact(ctx, string(src), arg); err != nil {
				b.rollback()
				return b.rows, fmt.Errorf("insert %s: %w", src.Table(), err)
			}
			if err := b.done(); err != nil {
				b.rollback()
				return b.rows, err
			}
		}
	}
	return b.rows, b.finish()
}

// loadGraph stores cleaned nodes and edges. Edges whose endpoints are not
// nodes were already separated by icdgraph.Clean; they are reported and
// counted as skipped.
func loadGraph(ctx context.Context, conn *sql.DB, c icdgraph.Cleaned, size int) (nodes, edges, skipped int64, err error) {
	b, err := newBatcher(ctx, conn, "cie10_nodes", size)
	if err != nil {
		return 0, 0, 0, err
	}
	for _, n := range c.Nodes {
		if _, err := b.q.InsertNode(ctx, n.Code, nullStr(n.Description)); err != nil {
			b.rollback()
			return 0, 0, 0, fmt.Errorf("insert node %s: %w", n.Code, err)
		}
		if err := b.done(); err != nil {
			b.rollback()
			return 0, 0, 0, err
		}
	}
	if err := b.finish(); err != nil {
		return 0, 0, 0, err
	}
	nodes = b.rows

	for _, e := range c.Invalid {
		logrus.Warnf("skipping edge %s -> %s (%s): endpoint is not a node", e.Source, e.Target, e.RelType)
	}
	skipped = int64(len(c.Invalid))

	b, err = newBatcher(ctx, conn, "cie10_edges", size)
	if err != nil {
		return nodes, 0, skipped, err
	}
	for _, e := range c.Edges {
		arg := db.InsertEdgeParams{
			Source:  e.Source,
			Target:  e.Target,
			RelType: nullStr(e.RelType),
			Weight:  nullFloat(e.Weight),
		}
		if err := b.q.InsertEdge(ctx, arg); err != nil {
			b.rollback()
			return nodes, 0, skipped, fmt.Errorf("insert edge %s -> %s: %w", e.Source, e.Target, err)
		}
		if err := b.done(); err != nil {
			b.rollback()
			return nodes, 0, skipped, err
		}
	}
	return nodes, b.rows, skipped, b.finish()
}

func missingColumns(path string, r *csvio.Reader, required ...string) error {
	if miss := r.Missing(required...); len(miss) > 0 {
		return fmt.Errorf("%s: %v: %w", path, miss, csvio.ErrMissingColumns)
	}
	return nil
}
