package facts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"saludfederada/config"
)

func TestAggregateIsIdempotent(t *testing.T) {
	recs := []Record{
		{Year: 2015, Entity: "Jalisco", Sex: "Hombre", AgeBand: "20-24", Code: "F10", Value: 3},
		{Year: 2015, Entity: "Jalisco", Sex: "Hombre", AgeBand: "20-24", Code: "F10", Value: 2},
		{Year: 2014, Entity: "Colima", Sex: "Mujer", AgeBand: "30-34", Code: "F12", Value: 1},
		{Year: 0, Entity: "", Sex: "", AgeBand: "", Code: "F14", Value: 4},
	}
	once := Aggregate(recs)
	twice := Aggregate(once)

	if len(once) != 3 {
		t.Fatalf("got %d groups, want 3", len(once))
	}
	if len(once) != len(twice) {
		t.Fatalf("second pass changed group count: %d → %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("group %d changed: %v → %v", i, once[i], twice[i])
		}
	}
	// sorted by key: unknown year first
	if once[0].Code != "F14" || once[1].Year != 2014 || once[2].Value != 5 {
		t.Errorf("unexpected order/values: %v", once)
	}
	if Total(once) != Total(recs) {
		t.Errorf("total changed: %d → %d", Total(recs), Total(once))
	}
}

func TestDuplicateRows(t *testing.T) {
	recs := []Record{
		{Year: 2015, Code: "F10", Value: 1},
		{Year: 2015, Code: "F10", Value: 1},
		{Year: 2015, Code: "F10", Value: 1},
		{Year: 2016, Code: "F10", Value: 1},
	}
	if got := DuplicateRows(recs); got != 3 {
		t.Errorf("DuplicateRows = %d, want 3", got)
	}
	if got := DuplicateRows(Aggregate(recs)); got != 0 {
		t.Errorf("DuplicateRows after aggregate = %d, want 0", got)
	}
}

func TestCleanWritesCSVAndLog(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "Limpieza", "defunciones_dedup.csv")
	m, err := Clean(Deaths, writeWideCSV(t), out, config.Default().Synonyms, Options{FilterSubstance: true})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if m.RowsIn != 9 || m.RowsOut != 6 {
		t.Errorf("rows %d→%d, want 9→6", m.RowsIn, m.RowsOut)
	}
	if m.DupRowsIn != 6 || m.DupRowsOut != 0 {
		t.Errorf("dups %d→%d, want 6→0", m.DupRowsIn, m.DupRowsOut)
	}
	if m.ValueIn != m.ValueOut {
		t.Errorf("value %d→%d, want equal", m.ValueIn, m.ValueOut)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2015,Jalisco,Hombre,20-24,F10,5" {
		t.Errorf("first row = %q", lines[1])
	}

	logPath := filepath.Join(dir, "docs", "limpieza.md")
	if err := WriteLog(logPath, m); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	md, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(md), "## Defunciones") || !strings.Contains(string(md), "9 → 6") {
		t.Errorf("log missing sections:\n%s", md)
	}
}
