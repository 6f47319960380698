package etl

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/config"
	"saludfederada/db"
)

// Stats describes one build.
type Stats struct {
	RunID    string
	Mode     Mode
	TextMode db.TextMode

	Deaths     int64
	Visits     int64
	Nodes      int64
	Edges      int64
	Phrases    int64
	PhraseDocs int64
	Matches    int64
	Skipped    int64

	QA      db.QA
	Origins map[string]int64
}

// Build resets the store, loads every input of the selected mode, then
// creates indexes and views, runs the QA checks and records the run in
// etl_runs.
func Build(ctx context.Context, conn *sql.DB, cfg *config.Config) (Stats, error) {
	start := time.Now()
	mode, err := SelectMode(cfg.Paths)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Mode: mode, TextMode: db.TextFrases}
	if mode == ModeRaw {
		st.TextMode = db.TextMatches
	}
	logrus.Infof("building %s from %s inputs", cfg.Paths.OutDB, mode)

	if err := db.Reset(ctx, conn, st.TextMode); err != nil {
		return st, fmt.Errorf("reset schema: %w", err)
	}
	q := db.New(conn)
	if st.RunID, err = q.StartEtlRun(ctx, string(mode)); err != nil {
		return st, fmt.Errorf("start etl run: %w", err)
	}

	if mode == ModeClean {
		err = buildClean(ctx, conn, cfg, &st)
	} else {
		err = buildRaw(ctx, conn, cfg, &st)
	}
	if err != nil {
		return st, err
	}

	if err := db.CreateIndexes(ctx, conn, st.TextMode); err != nil {
		return st, fmt.Errorf("create indexes: %w", err)
	}
	if _, err := db.CreateUnifiedView(ctx, conn); err != nil {
		return st, fmt.Errorf("create views: %w", err)
	}
	if st.QA, err = db.QASummary(ctx, conn); err != nil {
		return st, err
	}
	if st.Origins, err = db.OriginCounts(ctx, conn); err != nil {
		return st, err
	}

	err = q.FinishEtlRun(ctx, db.FinishEtlRunParams{
		RunID:           st.RunID,
		RowsDefunciones: st.Deaths,
		RowsUrgencias:   st.Visits,
		RowsNodes:       st.Nodes,
		RowsEdges:       st.Edges,
		RowsTexto:       st.Phrases + st.Matches,
		RowsSkipped:     st.Skipped,
	})
	if err != nil {
		return st, fmt.Errorf("finish etl run: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"run":     st.RunID,
		"mode":    st.Mode,
		"skipped": st.Skipped,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("build finished")
	return st, nil
}

// WriteSummary prints the QA block shown at the end of a build.
func WriteSummary(w io.Writer, st Stats) {
	fmt.Fprintln(w, "\n[RESUMEN v_eventos]")
	if len(st.QA.Events) == 0 {
		fmt.Fprintln(w, "  (vacio)")
	}
	for _, e := range st.QA.Events {
		fmt.Fprintf(w, "  %-12s  filas=%d  suma_valor=%d\n", e.Fuente, e.Rows, e.Total)
	}
	fmt.Fprintln(w, "\n[QA] Duplicados clave (def/urg):")
	fmt.Fprintf(w, "  defunciones=%d | urgencias=%d\n", st.QA.DupDeaths, st.QA.DupVisits)
	fmt.Fprintln(w, "\n[QA] Códigos en hechos NO presentes en nodes:")
	fmt.Fprintf(w, "  faltantes=%d\n", st.QA.MissingCodes)
	fmt.Fprintln(w, "\n[CHECK] Orígenes en v_unificado")
	for _, o := range db.Origins {
		if n, ok := st.Origins[o]; ok {
			fmt.Fprintf(w, "  %-16s %d\n", o, n)
		}
	}
}
