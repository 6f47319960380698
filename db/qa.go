package db

import (
	"context"
	"fmt"
)

type SourceTotal struct {
	Fuente string
	Rows   int64
	Total  int64
}

type QA struct {
	Events       []SourceTotal
	DupDeaths    int64 // key groups with more than one row
	DupVisits    int64
	MissingCodes int64 // distinct fact codes absent from cie10_nodes
}

const dupKeyGroups = `
SELECT COUNT(*) FROM (
    SELECT 1 FROM %s
     GROUP BY anio, entidad_norm, sexo, edad_quinquenal, cie10_code
    HAVING COUNT(*) > 1
)`

// QASummary computes the post-build checks over v_eventos and the fact
// tables.
func QASummary(ctx context.Context, db DBTX) (QA, error) {
	var qa QA
	rows, err := db.QueryContext(ctx,
		"SELECT fuente, COUNT(*), COALESCE(SUM(valor), 0) FROM v_eventos GROUP BY fuente ORDER BY fuente")
	if err != nil {
		return qa, fmt.Errorf("events per source: %w", err)
	}
	for rows.Next() {
		var s SourceTotal
		if err := rows.Scan(&s.Fuente, &s.Rows, &s.Total); err != nil {
			rows.Close()
			return qa, err
		}
		qa.Events = append(qa.Events, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return qa, err
	}

	if err := db.QueryRowContext(ctx, fmt.Sprintf(dupKeyGroups, "fact_defunciones")).Scan(&qa.DupDeaths); err != nil {
		return qa, fmt.Errorf("duplicate keys: %w", err)
	}
	if err := db.QueryRowContext(ctx, fmt.Sprintf(dupKeyGroups, "fact_urgencias")).Scan(&qa.DupVisits); err != nil {
		return qa, fmt.Errorf("duplicate keys: %w", err)
	}
	err = db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM (
    SELECT DISTINCT cie10_code FROM v_eventos
    EXCEPT
    SELECT code FROM cie10_nodes
)`).Scan(&qa.MissingCodes)
	if err != nil {
		return qa, fmt.Errorf("missing codes: %w", err)
	}
	return qa, nil
}

// OriginCounts returns the number of v_unificado rows per origen.
func OriginCounts(ctx context.Context, db DBTX) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT origen, COUNT(*) FROM v_unificado GROUP BY origen")
	if err != nil {
		return nil, fmt.Errorf("count origins: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var o string
		var n int64
		if err := rows.Scan(&o, &n); err != nil {
			return nil, err
		}
		out[o] = n
	}
	return out, rows.Err()
}

// CountRows returns SELECT COUNT(*) for a table or view name taken from the
// store's own catalog.
func CountRows(ctx context.Context, db DBTX, name string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}
