package season

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/lox/snowseason/internal/models"
)

// Group names of the nested record.
const (
	GroupBoundaries = "season_boundaries"
	GroupStrict     = "season_boundaries_strict"
	GroupDepths     = "snow_depth_milestones"
	GroupSnowfall   = "snowfall_markers"
	GroupTemps      = "temperature_stats"
	GroupWinds      = "wind_stats"
)

// Label formats the season starting in year as "YYYY-YY".
func Label(year int) string {
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// ParseLabel returns the start year of a "YYYY-YY" label.
func ParseLabel(label string) (int, error) {
	var y, yy int
	if _, err := fmt.Sscanf(label, "%4d-%2d", &y, &yy); err != nil {
		return 0, fmt.Errorf("parse season label %q: %w", label, err)
	}
	if (y+1)%100 != yy {
		return 0, fmt.Errorf("parse season label %q: years are not consecutive", label)
	}
	return y, nil
}

// Boundaries are season onset dates, either from averaged windows or from
// runs of consecutive qualifying days.
type Boundaries struct {
	Autumn sql.NullTime
	Winter sql.NullTime
	Spring sql.NullTime
	Summer sql.NullTime
}

// Depths are the snow-depth milestones, keyed by threshold in cm.
type Depths struct {
	Max   sql.NullFloat64
	First map[int]sql.NullTime
	Last  map[int]sql.NullTime
	Fin   sql.NullTime
}

// Snowfall holds the snowfall markers and full-season reductions.
type Snowfall struct {
	First            sql.NullTime
	Last             sql.NullTime
	FirstSubstantial sql.NullTime
	LastSubstantial  sql.NullTime
	Total            float64
	DaysOver         map[int]int
}

// Stats is a min/avg/max triple. Avg is rounded to one decimal.
type Stats struct {
	Min sql.NullFloat64
	Avg sql.NullFloat64
	Max sql.NullFloat64
}

// NamedStats is Stats for one named column.
type NamedStats struct {
	Key string
	Stats
}

// Record is the derived characterisation of one season. It is built once and
// not modified afterwards.
type Record struct {
	Label      string
	StartYear  int
	Boundaries Boundaries
	// StrictBoundaries require every day of the run to pass the threshold.
	StrictBoundaries Boundaries
	Depths           Depths
	Snowfall         Snowfall
	Temps            []NamedStats
	Winds            []NamedStats
}

// Field is one flattened key/value pair of a record.
type Field struct {
	Key   string
	Value any
}

// node is an ordered nested key/value tree; Map and Flatten both walk it so
// their key sets always agree.
type node struct {
	key      string
	value    any
	children []node
}

func leaf(key string, v any) node {
	return node{key: key, value: v}
}

func branch(key string, children ...node) node {
	if children == nil {
		children = []node{}
	}
	return node{key: key, children: children}
}

func dateValue(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time.Format(models.DateLayout)
}

func floatValue(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func statsNode(key string, s Stats) node {
	return branch(key,
		leaf("min", floatValue(s.Min)),
		leaf("avg", floatValue(s.Avg)),
		leaf("max", floatValue(s.Max)),
	)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (r *Record) tree() []node {
	depths := sortedKeys(r.Depths.First)
	first := make([]node, 0, len(depths))
	last := make([]node, 0, len(depths))
	for _, d := range depths {
		k := strconv.Itoa(d)
		first = append(first, leaf(k, dateValue(r.Depths.First[d])))
		last = append(last, leaf(k, dateValue(r.Depths.Last[d])))
	}

	var over []node
	for _, lvl := range sortedKeys(r.Snowfall.DaysOver) {
		over = append(over, leaf(strconv.Itoa(lvl), r.Snowfall.DaysOver[lvl]))
	}

	temps := make([]node, 0, len(r.Temps))
	for _, s := range r.Temps {
		temps = append(temps, statsNode(s.Key, s.Stats))
	}
	winds := make([]node, 0, len(r.Winds))
	for _, s := range r.Winds {
		winds = append(winds, statsNode(s.Key, s.Stats))
	}

	return []node{
		branch(GroupBoundaries,
			leaf("aut", dateValue(r.Boundaries.Autumn)),
			leaf("win", dateValue(r.Boundaries.Winter)),
			leaf("spr", dateValue(r.Boundaries.Spring)),
			leaf("sum", dateValue(r.Boundaries.Summer)),
		),
		branch(GroupStrict,
			leaf("aut", dateValue(r.StrictBoundaries.Autumn)),
			leaf("win", dateValue(r.StrictBoundaries.Winter)),
			leaf("spr", dateValue(r.StrictBoundaries.Spring)),
			leaf("sum", dateValue(r.StrictBoundaries.Summer)),
		),
		branch(GroupDepths,
			leaf("max", floatValue(r.Depths.Max)),
			branch("first", first...),
			branch("last", last...),
			leaf("fin", dateValue(r.Depths.Fin)),
		),
		branch(GroupSnowfall,
			leaf("fst", dateValue(r.Snowfall.First)),
			leaf("lst", dateValue(r.Snowfall.Last)),
			leaf("fst_subs", dateValue(r.Snowfall.FirstSubstantial)),
			leaf("lst_subs", dateValue(r.Snowfall.LastSubstantial)),
			leaf("total", r.Snowfall.Total),
			branch("days_over", over...),
		),
		branch(GroupTemps, temps...),
		branch(GroupWinds, winds...),
	}
}

func toMap(nodes []node) map[string]any {
	m := make(map[string]any, len(nodes))
	for _, n := range nodes {
		if n.children != nil {
			m[n.key] = toMap(n.children)
			continue
		}
		m[n.key] = n.value
	}
	return m
}

// Map returns the record as nested groups of primitive values: date strings,
// float64, int or nil. The season label is not included.
func (r *Record) Map() map[string]any {
	return toMap(r.tree())
}

// Flatten returns the record as ordered fields keyed group_sub_key, with the
// season label first.
func (r *Record) Flatten() []Field {
	fields := []Field{{Key: "season", Value: r.Label}}
	var walk func(prefix string, nodes []node)
	walk = func(prefix string, nodes []node) {
		for _, n := range nodes {
			key := n.key
			if prefix != "" {
				key = prefix + "_" + n.key
			}
			if n.children != nil {
				walk(key, n.children)
				continue
			}
			fields = append(fields, Field{Key: key, Value: n.value})
		}
	}
	walk("", r.tree())
	return fields
}

// Dates returns the four boundary dates in season order.
func (b Boundaries) Dates() []sql.NullTime {
	return []sql.NullTime{b.Autumn, b.Winter, b.Spring, b.Summer}
}

// MarshalJSON encodes the nested map form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
