package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Writer writes a UTF-8, comma separated file with a header row.
type Writer struct {
	file  *os.File
	w     *csv.Writer
	count int
}

// Create creates path (and its parent directories) and writes header.
func Create(path string, header []string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &Writer{file: file, w: csv.NewWriter(file)}
	if err := w.w.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return w, nil
}

func (w *Writer) Write(record []string) error {
	if err := w.w.Write(record); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of data rows written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return w.file.Close()
}

// WriteAll writes header and rows to path in one call.
func WriteAll(path string, header []string, rows [][]string) error {
	w, err := Create(path, header)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// Table is an in-memory result set: query outputs, rankings, profiles.
type Table struct {
	Header []string
	Rows   [][]string
}

// Write saves the table as a CSV file.
func (t Table) Write(path string) error {
	return WriteAll(path, t.Header, t.Rows)
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}
