package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
	"saludfederada/normalize"
)

var MasterHeader = []string{
	"archivo", "pregunta", "pregunta_norm", "respuesta", "fragmentos",
	"hash_respuesta", "tiene_datos_sql", "ruta_datos_sql",
}

// NormalizeQuestion lower-cases q and collapses whitespace.
func NormalizeQuestion(q string) string {
	return normalize.Spaces(strings.ToLower(q))
}

// AnswerHash is the first 16 hex digits of sha256(qNorm + "\n" + answer).
func AnswerHash(qNorm, answer string) string {
	sum := sha256.Sum256([]byte(qNorm + "\n" + answer))
	return hex.EncodeToString(sum[:])[:16]
}

type MergeStats struct {
	Files      int
	Kept       int
	Duplicates int
}

// MergeAnswers reads every answer file in inDir (name order, skipping
// _datos_sql files and files without pregunta/respuesta/fragmentos), keeps
// the first row per (normalized question, answer hash) and writes the
// master table and a file index.
func MergeAnswers(inDir, masterPath, indexPath string) (MergeStats, error) {
	var st MergeStats
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", inDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, ".csv") || strings.HasSuffix(n, "_datos_sql.csv") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	master := csvio.Table{Header: MasterHeader}
	index := csvio.Table{Header: []string{"archivo", "ruta"}}
	seen := make(map[[2]string]bool)
	for _, name := range names {
		path := filepath.Join(inDir, name)
		q, answer, frags, ok := readAnswer(path)
		if !ok {
			continue
		}
		st.Files++
		index.Rows = append(index.Rows, []string{name, path})

		qNorm := NormalizeQuestion(q)
		h := AnswerHash(qNorm, answer)
		if seen[[2]string{qNorm, h}] {
			st.Duplicates++
			continue
		}
		seen[[2]string{qNorm, h}] = true

		sqlPath := filepath.Join(inDir, strings.TrimSuffix(name, ".csv")+"_datos_sql.csv")
		hasSQL := "0"
		if _, err := os.Stat(sqlPath); err == nil {
			hasSQL = "1"
		} else {
			sqlPath = ""
		}
		master.Rows = append(master.Rows, []string{name, q, qNorm, answer, frags, h, hasSQL, sqlPath})
	}
	st.Kept = master.Len()

	if err := index.Write(indexPath); err != nil {
		return st, err
	}
	if err := master.Write(masterPath); err != nil {
		return st, err
	}
	logrus.Infof("master written: %s (%d kept, %d duplicates)", masterPath, st.Kept, st.Duplicates)
	return st, nil
}

// readAnswer returns the first data row of an answer file. Unreadable files
// and files missing a column are reported as not ok.
func readAnswer(path string) (q, answer, frags string, ok bool) {
	r, err := csvio.Open(path)
	if err != nil {
		logrus.Warnf("skipping %s: %v", path, err)
		return "", "", "", false
	}
	defer r.Close()
	if len(r.Missing(ResultHeader...)) > 0 {
		return "", "", "", false
	}
	row, err := r.Next()
	if err == io.EOF {
		return "", "", "", false
	}
	if err != nil {
		logrus.Warnf("skipping %s: %v", path, err)
		return "", "", "", false
	}
	qi, _ := r.Index("pregunta")
	ai, _ := r.Index("respuesta")
	fi, _ := r.Index("fragmentos")
	return csvio.Str(row, qi), csvio.Str(row, ai), csvio.Str(row, fi), true
}
