// Package etl builds salud_federada.db from the cleaned inputs when they are
// complete, or from the raw inputs otherwise.
package etl

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"saludfederada/config"
)

// ErrNoInputs is returned when neither the full clean set nor any raw input
// exists.
var ErrNoInputs = errors.New("no clean or raw inputs found")

type Mode string

const (
	ModeClean Mode = "clean"
	ModeRaw   Mode = "raw"
)

func exists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// SelectMode returns ModeClean when every clean input exists and ModeRaw
// when at least one raw input exists. Otherwise the error names every
// expected path.
func SelectMode(p config.Paths) (Mode, error) {
	clean := p.CleanInputs()
	all := true
	for _, f := range clean {
		if !exists(f) {
			all = false
			break
		}
	}
	if all {
		return ModeClean, nil
	}
	raw := p.RawInputs()
	for _, f := range raw {
		if exists(f) {
			return ModeRaw, nil
		}
	}
	return "", fmt.Errorf("%w\n  expected clean:\n  - %s\n  or raw:\n  - %s", ErrNoInputs,
		strings.Join(clean, "\n  - "), strings.Join(raw, "\n  - "))
}
