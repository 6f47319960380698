// Package config loads pipeline paths, column-name synonyms and the optional
// Postgres mirror target from TOML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed defaults.toml
var defaultsTOML string

type Config struct {
	Paths    Paths    `toml:"paths"`
	Build    Build    `toml:"build"`
	Synonyms Synonyms `toml:"synonyms"`
	Postgres Postgres `toml:"postgres"`
}

// Paths holds the store, report and input locations. Relative input paths
// are resolved against DataDir.
type Paths struct {
	DataDir string `toml:"data_dir"`
	OutDB   string `toml:"out_db"`
	DocsDir string `toml:"docs_dir"`

	CleanDeaths     string `toml:"clean_deaths"`
	CleanVisits     string `toml:"clean_visits"`
	CleanNodes      string `toml:"clean_nodes"`
	CleanEdges      string `toml:"clean_edges"`
	CleanPhrases    string `toml:"clean_phrases"`
	CleanPhraseDocs string `toml:"clean_phrase_docs"`

	RawDeaths  string `toml:"raw_deaths"`
	RawVisits  string `toml:"raw_visits"`
	RawNodes   string `toml:"raw_nodes"`
	RawEdges   string `toml:"raw_edges"`
	RawMatches string `toml:"raw_matches"`
}

// CleanInputs lists the inputs of a clean build in load order.
func (p Paths) CleanInputs() []string {
	return []string{p.CleanDeaths, p.CleanVisits, p.CleanNodes, p.CleanEdges, p.CleanPhrases, p.CleanPhraseDocs}
}

// RawInputs lists the inputs of a raw build in load order.
func (p Paths) RawInputs() []string {
	return []string{p.RawDeaths, p.RawVisits, p.RawNodes, p.RawEdges, p.RawMatches}
}

func (p *Paths) resolve() {
	if p.DataDir == "" {
		return
	}
	for _, f := range []*string{
		&p.CleanDeaths, &p.CleanVisits, &p.CleanNodes, &p.CleanEdges, &p.CleanPhrases, &p.CleanPhraseDocs,
		&p.RawDeaths, &p.RawVisits, &p.RawNodes, &p.RawEdges, &p.RawMatches,
	} {
		if *f != "" && !filepath.IsAbs(*f) {
			*f = filepath.Join(p.DataDir, *f)
		}
	}
}

type Build struct {
	BatchSize       int  `toml:"batch_size"`
	FilterSubstance bool `toml:"filter_substance"`
	DropZero        bool `toml:"drop_zero"`
}

// Synonyms maps each logical field to its accepted column names.
type Synonyms struct {
	Year   []string `toml:"year"`
	Entity []string `toml:"entity"`
	Sex    []string `toml:"sex"`
	Age    []string `toml:"age"`
	Code   []string `toml:"code"`
	Value  []string `toml:"value"`

	NodeID     []string `toml:"node_id"`
	NodeDesc   []string `toml:"node_desc"`
	EdgeSource []string `toml:"edge_source"`
	EdgeTarget []string `toml:"edge_target"`
	EdgeRel    []string `toml:"edge_rel"`
	EdgeWeight []string `toml:"edge_weight"`

	Sentence []string `toml:"sentence"`
	TextCode []string `toml:"text_code"`
	DocID    []string `toml:"doc_id"`
	SentID   []string `toml:"sent_id"`
	Keyword  []string `toml:"keyword"`
}

type Postgres struct {
	DSN string `toml:"dsn"`
}

func defaults() *Config {
	var c Config
	if _, err := toml.Decode(defaultsTOML, &c); err != nil {
		panic(fmt.Sprintf("embedded defaults.toml: %v", err))
	}
	return &c
}

// Default returns the embedded configuration with input paths resolved.
func Default() *Config {
	c := defaults()
	c.Paths.resolve()
	return c
}

// Load returns the defaults overlaid with the file at path. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	c := defaults()
	if path == "" {
		c.Paths.resolve()
		return c, nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	if c.Build.BatchSize <= 0 {
		return nil, fmt.Errorf("%s: build.batch_size must be positive", path)
	}
	c.Paths.resolve()
	return c, nil
}

// LoadEnv reads a .env file from the working directory if one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// PostgresDSN returns DATABASE_URL when set, else the configured DSN.
func (c *Config) PostgresDSN() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	return c.Postgres.DSN
}
