// Package export writes v_unificado to Parquet for analytical engines.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/sirupsen/logrus"

	"saludfederada/db"
)

// UnifiedRow is the Parquet schema of one v_unificado row.
type UnifiedRow struct {
	Origen         string  `parquet:"origen"`
	IDOrigen       string  `parquet:"id_origen"`
	Cie10Code      *string `parquet:"cie10_code,optional"`
	Anio           *int32  `parquet:"anio,optional"`
	EntidadNorm    *string `parquet:"entidad_norm,optional"`
	EdadQuinquenal *string `parquet:"edad_quinquenal,optional"`
	Sexo           *string `parquet:"sexo,optional"`
	Valor          *int64  `parquet:"valor,optional"`
	Fuente         *string `parquet:"fuente,optional"`
	Texto          *string `parquet:"texto,optional"`
	Campo          *string `parquet:"campo,optional"`
}

// UnifiedWriter writes UnifiedRow records with zstd compression, 8KB pages
// and page statistics. Rows sorted by (origen, cie10_code) let readers skip
// row groups on the two usual filters.
type UnifiedWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[UnifiedRow]
	count  int
}

func NewUnifiedWriter(path string) (*UnifiedWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}
	writer := parquet.NewGenericWriter[UnifiedRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.PageBufferSize(8*1024),
		parquet.WriteBufferSize(64*1024*1024),
		parquet.DataPageStatistics(true),
		parquet.CreatedBy("saludfed", "1.0", ""),
	)
	return &UnifiedWriter{file: file, writer: writer}, nil
}

// Write writes a batch of rows.
func (w *UnifiedWriter) Write(rows []UnifiedRow) (int, error) {
	n, err := w.writer.Write(rows)
	w.count += n
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	return n, nil
}

// Close flushes the final row group and closes the file.
func (w *UnifiedWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

func (w *UnifiedWriter) Count() int {
	return w.count
}

const batchSize = 10_000

// Unified writes the v_unificado rows of the given origins (all when none
// are given) to path, ordered by origen, cie10_code, id_origen.
func Unified(ctx context.Context, conn db.DBTX, path string, origins ...string) (int, error) {
	q := `SELECT origen, id_origen, cie10_code, anio, entidad_norm, edad_quinquenal,
       sexo, valor, fuente, texto, campo
  FROM v_unificado`
	args := make([]interface{}, len(origins))
	if len(origins) > 0 {
		q += " WHERE origen IN (?"
		for i := range origins {
			if i > 0 {
				q += ", ?"
			}
			args[i] = origins[i]
		}
		q += ")"
	}
	q += " ORDER BY origen, cie10_code, id_origen"

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("query v_unificado: %w", err)
	}
	defer rows.Close()

	w, err := NewUnifiedWriter(path)
	if err != nil {
		return 0, err
	}
	batch := make([]UnifiedRow, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := w.Write(batch)
		batch = batch[:0]
		return err
	}
	for rows.Next() {
		var r UnifiedRow
		if err := rows.Scan(&r.Origen, &r.IDOrigen, &r.Cie10Code, &r.Anio, &r.EntidadNorm,
			&r.EdadQuinquenal, &r.Sexo, &r.Valor, &r.Fuente, &r.Texto, &r.Campo); err != nil {
			w.Close()
			return w.Count(), fmt.Errorf("scan v_unificado: %w", err)
		}
		batch = append(batch, r)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				w.Close()
				return w.Count(), err
			}
		}
	}
	if err := rows.Err(); err != nil {
		w.Close()
		return w.Count(), err
	}
	if err := flush(); err != nil {
		w.Close()
		return w.Count(), err
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	logrus.Infof("wrote %d rows to %s", w.Count(), path)
	return w.Count(), nil
}
