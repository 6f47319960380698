// Command saludfed runs the federated substance-use health pipeline: it
// cleans fact, graph and text inputs, builds the SQLite store with its
// unified view, and answers search, analysis and export commands over it.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"saludfederada/config"
	"saludfederada/db"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "saludfed"
	app.Usage = "integra hechos, grafo CIE-10 y textos en una base federada"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "archivo TOML de configuración"},
		cli.StringFlag{Name: "db", Usage: "ruta de la base SQLite (sobrescribe paths.out_db)"},
		cli.BoolFlag{Name: "verbose", Usage: "log en nivel debug"},
	}
	app.Before = func(c *cli.Context) error {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if c.GlobalBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return config.LoadEnv()
	}
	app.Commands = []cli.Command{
		cleanFactsCommand,
		cleanGraphCommand,
		extractTextsCommand,
		cleanTextsCommand,
		buildCommand,
		viewsCommand,
		searchCommand,
		federatedCommand,
		describeCommand,
		analyzeCommand,
		graphOpCommand,
		profileCommand,
		retrieveCommand,
		mergeAnswersCommand,
		exportParquetCommand,
		pgMirrorCommand,
	}
	return app
}

// loadConfig reads --config and applies the global overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if p := c.GlobalString("db"); p != "" {
		cfg.Paths.OutDB = p
	}
	return cfg, nil
}

// openStore opens an existing store; commands other than build never create
// one.
func openStore(cfg *config.Config) (*sql.DB, error) {
	if _, err := os.Stat(cfg.Paths.OutDB); err != nil {
		return nil, fmt.Errorf("store %s not found, run build first: %w", cfg.Paths.OutDB, err)
	}
	return db.Open(cfg.Paths.OutDB)
}

// withStore loads the config, opens the store and hands both to fn.
func withStore(c *cli.Context, fn func(cfg *config.Config, conn *sql.DB) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	conn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(cfg, conn)
}

func stringOr(c *cli.Context, name, def string) string {
	if v := c.String(name); v != "" {
		return v
	}
	return def
}
