package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"saludfederada/analysis"
	"saludfederada/config"
	"saludfederada/corpus"
	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/etl"
	"saludfederada/export"
	"saludfederada/facts"
	"saludfederada/icdgraph"
	"saludfederada/pgmirror"
	"saludfederada/profile"
	"saludfederada/retrieval"
	"saludfederada/search"
)

var cleanFactsCommand = cli.Command{
	Name:  "clean-facts",
	Usage: "limpia y agrega las tablas de defunciones y urgencias",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "deaths-in", Usage: "CSV crudo de defunciones"},
		cli.StringFlag{Name: "visits-in", Usage: "CSV crudo de urgencias"},
		cli.StringFlag{Name: "deaths-out"},
		cli.StringFlag{Name: "visits-out"},
		cli.StringFlag{Name: "log", Usage: "bitácora Markdown"},
		cli.BoolFlag{Name: "all-codes", Usage: "conserva códigos fuera de F10-F19"},
		cli.BoolFlag{Name: "drop-zero", Usage: "descarta valores en cero"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		p := cfg.Paths
		opts := facts.Options{
			FilterSubstance: cfg.Build.FilterSubstance && !c.Bool("all-codes"),
			DropZero:        cfg.Build.DropZero || c.Bool("drop-zero"),
		}
		runs := []struct {
			src     facts.Source
			in, out string
		}{
			{facts.Deaths, stringOr(c, "deaths-in", p.RawDeaths), stringOr(c, "deaths-out", p.CleanDeaths)},
			{facts.Visits, stringOr(c, "visits-in", p.RawVisits), stringOr(c, "visits-out", p.CleanVisits)},
		}
		var metrics []facts.Metrics
		for _, r := range runs {
			m, err := facts.Clean(r.src, r.in, r.out, cfg.Synonyms, opts)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %d -> %d filas (suma %d -> %d)\n", r.src, m.RowsIn, m.RowsOut, m.ValueIn, m.ValueOut)
			metrics = append(metrics, m)
		}
		return facts.WriteLog(stringOr(c, "log", filepath.Join(p.DocsDir, "limpieza_hechos.md")), metrics...)
	},
}

var cleanGraphCommand = cli.Command{
	Name:  "clean-graph",
	Usage: "limpia nodos y aristas del grafo CIE-10",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "nodes-in"},
		cli.StringFlag{Name: "edges-in"},
		cli.StringFlag{Name: "nodes-out"},
		cli.StringFlag{Name: "edges-out"},
		cli.StringFlag{Name: "log"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		p := cfg.Paths
		res, err := icdgraph.CleanFiles(
			stringOr(c, "nodes-in", p.RawNodes), stringOr(c, "edges-in", p.RawEdges),
			stringOr(c, "nodes-out", p.CleanNodes), stringOr(c, "edges-out", p.CleanEdges),
			stringOr(c, "log", filepath.Join(p.DocsDir, "limpieza_grafo.md")), cfg.Synonyms)
		if err != nil {
			return err
		}
		fmt.Printf("nodos %d -> %d, aristas %d -> %d (inválidas %d, duplicadas %d)\n",
			res.NodesIn, len(res.Nodes), res.EdgesIn, len(res.Edges), len(res.Invalid), res.EdgesDup)
		return nil
	},
}

var extractTextsCommand = cli.Command{
	Name:      "extract-texts",
	Usage:     "segmenta un corpus de texto y detecta menciones de sustancias",
	ArgsUsage: "<corpus.txt>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Usage: "directorio de salida"},
		cli.IntFlag{Name: "limit", Usage: "máximo de oraciones (0 = todas)"},
		cli.StringFlag{Name: "query", Usage: "consulta TF-IDF sobre las oraciones extraídas"},
		cli.IntFlag{Name: "topk", Value: 10, Usage: "resultados de --query"},
		cli.StringFlag{Name: "hits", Usage: "escribe los resultados de --query en CSV"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		dir := stringOr(c, "out", filepath.Dir(cfg.Paths.RawMatches))
		if c.NArg() == 1 {
			st, err := corpus.Extract(c.Args().First(), dir, c.Int("limit"), corpus.Keywords)
			if err != nil {
				return err
			}
			fmt.Printf("oraciones=%d menciones=%d\n", st.Sentences, st.Matches)
		} else if c.String("query") == "" {
			return cli.NewExitError("se requiere el archivo de texto o --query", 2)
		}

		q := c.String("query")
		if q == "" {
			return nil
		}
		hits, err := corpus.SearchSentences(dir, q, c.Int("topk"))
		if err != nil {
			return err
		}
		if path := c.String("hits"); path != "" {
			rows := make([][]string, len(hits))
			for i, h := range hits {
				rows[i] = h.CSV()
			}
			return csvio.WriteAll(path, corpus.SentenceHitHeader, rows)
		}
		for _, h := range hits {
			fmt.Println(strings.Join(h.CSV(), "\t"))
		}
		return nil
	},
}

var cleanTextsCommand = cli.Command{
	Name:  "clean-texts",
	Usage: "construye el catálogo de frases a partir de las menciones",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "in"},
		cli.StringFlag{Name: "phrases-out"},
		cli.StringFlag{Name: "links-out"},
		cli.StringFlag{Name: "log"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		p := cfg.Paths
		st, err := corpus.CleanPhrases(stringOr(c, "in", p.RawMatches),
			stringOr(c, "phrases-out", p.CleanPhrases), stringOr(c, "links-out", p.CleanPhraseDocs),
			stringOr(c, "log", filepath.Join(p.DocsDir, "limpieza_textos.md")), cfg.Synonyms)
		if err != nil {
			return err
		}
		fmt.Printf("filas=%d frases=%d vínculos=%d (vacías %d, posiciones duplicadas %d)\n",
			st.Rows, st.Phrases, st.Links, st.Empty, st.DupPositions)
		return nil
	},
}

var buildCommand = cli.Command{
	Name:  "build",
	Usage: "reconstruye la base SQLite, sus vistas y la vista unificada",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "batch", Usage: "filas por transacción"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if n := c.Int("batch"); n > 0 {
			cfg.Build.BatchSize = n
		}
		conn, err := db.Open(cfg.Paths.OutDB)
		if err != nil {
			return err
		}
		defer conn.Close()
		st, err := etl.Build(context.Background(), conn, cfg)
		if err != nil {
			return err
		}
		etl.WriteSummary(os.Stdout, st)
		return nil
	},
}

var viewsCommand = cli.Command{
	Name:  "views",
	Usage: "recrea las vistas, la vista unificada y el índice de texto completo",
	Action: func(c *cli.Context) error {
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			ctx := context.Background()
			mode, err := db.DetectTextMode(ctx, conn)
			if err != nil {
				return err
			}
			if err := db.CreateViews(ctx, conn, mode); err != nil {
				return err
			}
			if _, err := db.CreateUnifiedView(ctx, conn); err != nil {
				return err
			}
			if err := search.EnsureFTS(ctx, conn, true); err != nil {
				return err
			}
			counts, err := db.OriginCounts(ctx, conn)
			if err != nil {
				return err
			}
			fmt.Printf("v_unificado (texto: %s)\n", mode)
			for _, o := range db.Origins {
				fmt.Printf("  %-16s %d\n", o, counts[o])
			}
			return nil
		})
	},
}

var searchCommand = cli.Command{
	Name:      "search",
	Usage:     "busca un término en las cuatro fuentes de v_unificado",
	ArgsUsage: "<término>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "origen", Usage: "grafo, texto, sql_defunciones o sql_urgencias"},
		cli.StringFlag{Name: "code, codigo", Usage: "código CIE-10 exacto (ej. F14)"},
		cli.IntFlag{Name: "limit", Value: 20},
		cli.BoolFlag{Name: "no-fts", Usage: "usa LIKE sobre la vista en lugar de FTS5"},
		cli.BoolFlag{Name: "rebuild-fts", Usage: "reconstruye el índice FTS5 antes de buscar"},
		cli.BoolFlag{Name: "expand", Usage: "amplía el término con sus variantes"},
		cli.BoolFlag{Name: "top-origen", Usage: "cuenta resultados por origen"},
		cli.BoolFlag{Name: "ejemplos-sql", Usage: "muestra los hechos con mayor valor de --code (F14 por omisión)"},
		cli.StringFlag{Name: "out, export-csv", Usage: "escribe los resultados en CSV"},
		cli.StringFlag{Name: "export-texto", Usage: "exporta las frases que contienen el término a CSV"},
		cli.StringFlag{Name: "export, export-all", Usage: "prefijo para exportar grafo, texto y sql"},
	},
	Action: func(c *cli.Context) error {
		term := strings.Join(c.Args(), " ")
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			ctx := context.Background()
			if c.Bool("rebuild-fts") {
				if err := search.EnsureFTS(ctx, conn, true); err != nil {
					return err
				}
			}
			if c.Bool("top-origen") {
				counts, err := search.TopByOrigin(ctx, conn, c.String("code"), term, 10)
				if err != nil {
					return err
				}
				if len(counts) == 0 {
					fmt.Println("(sin resultados)")
				}
				for _, oc := range counts {
					fmt.Printf("%-16s  %d\n", oc.Origen, oc.N)
				}
				return nil
			}
			if c.Bool("ejemplos-sql") {
				rows, err := search.SQLExamples(ctx, conn, stringOr(c, "code", "F14"), c.Int("limit"))
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("(sin resultados)")
				}
				for _, r := range rows {
					fmt.Println(strings.Join(r.CSV(), " | "))
				}
				return nil
			}
			if path := c.String("export-texto"); path != "" {
				if term == "" {
					return cli.NewExitError("--export-texto requiere un término", 2)
				}
				n, err := search.ExportText(ctx, conn, term, path)
				if err != nil {
					return err
				}
				fmt.Printf("texto=%d\n", n)
				return nil
			}
			if prefix := c.String("export"); prefix != "" {
				if term == "" {
					return cli.NewExitError("--export requiere un término", 2)
				}
				n, err := search.ExportAll(ctx, conn, term, prefix)
				if err != nil {
					return err
				}
				fmt.Printf("grafo=%d texto=%d sql=%d\n", n.Graph, n.Text, n.SQL)
				return nil
			}
			results, err := search.Search(ctx, conn, search.Query{
				Text:   term,
				Origen: c.String("origen"),
				Code:   c.String("code"),
				Limit:  c.Int("limit"),
				NoFTS:  c.Bool("no-fts"),
				Expand: c.Bool("expand"),
			})
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return search.WriteResults(out, results)
			}
			for _, r := range results {
				fmt.Printf("[%s] %s | %s\n", r.Origen, r.Code, r.Snippet)
			}
			logrus.Debugf("%d results", len(results))
			return nil
		})
	},
}

var federatedCommand = cli.Command{
	Name:      "federated",
	Usage:     "resume códigos, eventos y menciones asociados a un término",
	ArgsUsage: "<término>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "fuente", Usage: "defunciones o urgencias"},
		cli.IntFlag{Name: "min-year"},
		cli.StringFlag{Name: "entidad"},
		cli.IntFlag{Name: "examples", Value: 5},
	},
	Action: func(c *cli.Context) error {
		term := strings.Join(c.Args(), " ")
		if term == "" {
			return cli.NewExitError("se requiere un término", 2)
		}
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			res, err := search.Federated(context.Background(), conn, term, search.FederatedOptions{
				Fuente:   c.String("fuente"),
				MinYear:  c.Int("min-year"),
				Entity:   c.String("entidad"),
				Examples: c.Int("examples"),
			})
			if err != nil {
				return err
			}
			search.WriteFederated(os.Stdout, res)
			return nil
		})
	},
}

func printOutputs(outs []analysis.Output) {
	for _, o := range outs {
		fmt.Printf("%-10s %5d  %s\n", o.Step, o.Rows, o.Path)
	}
}

var describeCommand = cli.Command{
	Name:  "describe",
	Usage: "responde las consultas descriptivas y escribe sus CSV",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: filepath.Join("Resultados", "consultas")},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			outs, err := analysis.Describe(context.Background(), conn, c.String("out"))
			if err != nil {
				return err
			}
			printOutputs(outs)
			return nil
		})
	},
}

var analyzeCommand = cli.Command{
	Name:  "analyze",
	Usage: "correlaciones, tendencias, centralidad, TF-IDF y reporte de minería",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: filepath.Join("Resultados", "mineria")},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			_, outs, err := analysis.Mine(context.Background(), conn, c.String("out"))
			if err != nil {
				return err
			}
			printOutputs(outs)
			return nil
		})
	},
}

var graphOpCommand = cli.Command{
	Name:      "graph-op",
	Usage:     "consulta el grafo CIE-10 almacenado",
	ArgsUsage: strings.Join([]string{icdgraph.OpCentrality, icdgraph.OpBetweenness, icdgraph.OpEdges, icdgraph.OpCommunities}, "|"),
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Usage: "escribe la tabla en CSV"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("se requiere una operación", 2)
		}
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			g, _, err := icdgraph.Load(context.Background(), db.New(conn))
			if err != nil {
				return err
			}
			t, err := g.Op(c.Args().First())
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return t.Write(out)
			}
			fmt.Println(strings.Join(t.Header, ","))
			for _, r := range t.Rows {
				fmt.Println(strings.Join(r, ","))
			}
			return nil
		})
	},
}

var profileCommand = cli.Command{
	Name:  "profile",
	Usage: "perfila la base y escribe los chequeos de calidad",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: filepath.Join("Resultados", "perfilado")},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			rep, err := profile.Run(context.Background(), conn, c.String("out"), time.Now())
			if err != nil {
				return err
			}
			for _, f := range rep.Files {
				fmt.Printf("%5d  %s\n", f.Table.Len(), f.Path)
			}
			return nil
		})
	},
}

var retrieveCommand = cli.Command{
	Name:  "retrieve",
	Usage: "recupera contexto de la base para cada pregunta",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "questions", Usage: "archivo de preguntas (por defecto las incluidas)"},
		cli.StringFlag{Name: "out", Value: filepath.Join("Resultados", "rag")},
		cli.IntFlag{Name: "k", Value: retrieval.DefaultK},
		cli.IntFlag{Name: "corpus-limit", Value: retrieval.DefaultCorpusLimit},
	},
	Action: func(c *cli.Context) error {
		questions := retrieval.DefaultQuestions
		if path := c.String("questions"); path != "" {
			qs, err := retrieval.LoadQuestions(path)
			if err != nil {
				return err
			}
			questions = qs
		}
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			res, err := retrieval.Run(context.Background(), conn, questions, c.String("out"), retrieval.Options{
				K:           c.Int("k"),
				CorpusLimit: c.Int("corpus-limit"),
				Now:         time.Now(),
			})
			if err != nil {
				return err
			}
			for _, r := range res {
				fmt.Println(r.Path)
			}
			return nil
		})
	},
}

var mergeAnswersCommand = cli.Command{
	Name:  "merge-answers",
	Usage: "consolida las respuestas en un maestro sin duplicados",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "in", Value: filepath.Join("Resultados", "rag")},
		cli.StringFlag{Name: "master", Value: filepath.Join("Resultados", "respuestas_maestro.csv")},
		cli.StringFlag{Name: "index", Value: filepath.Join("Resultados", "respuestas_indice.csv")},
	},
	Action: func(c *cli.Context) error {
		st, err := retrieval.MergeAnswers(c.String("in"), c.String("master"), c.String("index"))
		if err != nil {
			return err
		}
		fmt.Printf("archivos=%d conservadas=%d duplicadas=%d\n", st.Files, st.Kept, st.Duplicates)
		return nil
	},
}

var exportParquetCommand = cli.Command{
	Name:  "export-parquet",
	Usage: "exporta v_unificado a Parquet",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out", Value: "salud_federada_unificado.parquet"},
		cli.StringSliceFlag{Name: "origen", Usage: "limita a los orígenes dados (repetible)"},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(_ *config.Config, conn *sql.DB) error {
			n, err := export.Unified(context.Background(), conn, c.String("out"), c.StringSlice("origen")...)
			if err != nil {
				return err
			}
			fmt.Printf("%d filas -> %s\n", n, c.String("out"))
			return nil
		})
	},
}

var pgMirrorCommand = cli.Command{
	Name:  "pg-mirror",
	Usage: "copia la base a PostgreSQL (DATABASE_URL)",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "dsn", Usage: "cadena de conexión (sobrescribe DATABASE_URL)"},
		cli.IntFlag{Name: "batch", Value: pgmirror.DefaultBatchSize},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(cfg *config.Config, conn *sql.DB) error {
			st, err := pgmirror.Mirror(context.Background(), conn, stringOr(c, "dsn", cfg.PostgresDSN()),
				pgmirror.Options{BatchSize: c.Int("batch")})
			if err != nil {
				return err
			}
			for _, t := range st.Tables {
				fmt.Printf("%-22s %d\n", t.Table, t.Rows)
			}
			return nil
		})
	},
}
