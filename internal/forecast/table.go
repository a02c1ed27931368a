package forecast

import (
	"sort"
	"time"
)

// Row is one timestamped reading with its fields keyed by column name.
type Row struct {
	Timestamp time.Time
	Fields    map[string]Field
}

// Get returns the named field, or the missing value.
func (r Row) Get(name string) Field {
	return r.Fields[name]
}

// Table is the normalized series of one measurement on one base date.
type Table struct {
	Date        string
	Measurement string
	Rows        []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Columns returns the sorted union of column names across all rows.
func (t *Table) Columns() []string {
	seen := make(map[string]struct{})
	for _, row := range t.Rows {
		for name := range row.Fields {
			seen[name] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for name := range seen {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// rowGroup holds the rows that share one timestamp, in input order.
type rowGroup struct {
	timestamp time.Time
	rows      []Row
}

// groupByTimestamp folds rows into groups of identical timestamps. Groups are
// returned in chronological order; rows keep their input order inside a group.
func groupByTimestamp(rows []Row) []rowGroup {
	index := make(map[int64]int, len(rows))
	groups := make([]rowGroup, 0, len(rows))

	for _, row := range rows {
		key := row.Timestamp.UnixNano()
		if i, ok := index[key]; ok {
			groups[i].rows = append(groups[i].rows, row)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, rowGroup{timestamp: row.Timestamp, rows: []Row{row}})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].timestamp.Before(groups[j].timestamp)
	})
	return groups
}

// firstPresent returns the first non-missing value of a column in the group.
func (g rowGroup) firstPresent(name string) Field {
	for _, row := range g.rows {
		if f := row.Get(name); !f.Missing() {
			return f
		}
	}
	return Field{}
}

// collapse merges rows sharing a timestamp; for every column the first
// non-missing value wins.
func collapse(rows []Row) []Row {
	groups := groupByTimestamp(rows)
	out := make([]Row, 0, len(groups))

	for _, g := range groups {
		if len(g.rows) == 1 {
			out = append(out, g.rows[0])
			continue
		}
		merged := Row{Timestamp: g.timestamp, Fields: make(map[string]Field)}
		for _, row := range g.rows {
			for name := range row.Fields {
				if _, done := merged.Fields[name]; !done {
					merged.Fields[name] = g.firstPresent(name)
				}
			}
		}
		out = append(out, merged)
	}
	return out
}
