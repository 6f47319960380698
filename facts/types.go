// Package facts reads the deaths and ER-visit count tables, reshapes them to
// one row per diagnosis code and aggregates duplicate keys.
package facts

import (
	"fmt"
	"strconv"
)

// Source names the fact table a record belongs to. The value is stored in
// the fuente column.
type Source string

const (
	Deaths Source = "defunciones"
	Visits Source = "urgencias"
)

// Table returns the SQLite table holding records of this source.
func (s Source) Table() string {
	return "fact_" + string(s)
}

// Record is one aggregate count: events for one code, year, region, sex and
// age band. Year 0 means the year could not be read.
type Record struct {
	Year    int
	Entity  string
	Sex     string
	AgeBand string
	Code    string
	Value   int64
}

// Key identifies the aggregation group of a record.
type Key struct {
	Year    int
	Entity  string
	Sex     string
	AgeBand string
	Code    string
}

func (r Record) Key() Key {
	return Key{Year: r.Year, Entity: r.Entity, Sex: r.Sex, AgeBand: r.AgeBand, Code: r.Code}
}

// Less orders keys by year, entity, sex, age band and code.
func (k Key) Less(o Key) bool {
	switch {
	case k.Year != o.Year:
		return k.Year < o.Year
	case k.Entity != o.Entity:
		return k.Entity < o.Entity
	case k.Sex != o.Sex:
		return k.Sex < o.Sex
	case k.AgeBand != o.AgeBand:
		return k.AgeBand < o.AgeBand
	default:
		return k.Code < o.Code
	}
}

// Header is the column layout of a cleaned fact CSV.
var Header = []string{"anio", "entidad_norm", "sexo", "edad_quinquenal", "cie10_code", "valor"}

// CSV renders the record in Header order.
func (r Record) CSV() []string {
	year := ""
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}
	return []string{year, r.Entity, r.Sex, r.AgeBand, r.Code, strconv.FormatInt(r.Value, 10)}
}

func (r Record) String() string {
	return fmt.Sprintf("%d/%s/%s/%s/%s=%d", r.Year, r.Entity, r.Sex, r.AgeBand, r.Code, r.Value)
}
