package forecast

// CoerceNumeric returns a copy of t where every column whose present values
// are all numeric holds float64 scalars. Columns with any non-numeric value
// keep their raw fields.
func CoerceNumeric(t *Table) *Table {
	numeric := make(map[string]bool)
	for _, col := range t.Columns() {
		numeric[col] = columnIsNumeric(t.Rows, col)
	}

	out := &Table{Date: t.Date, Measurement: t.Measurement, Rows: make([]Row, len(t.Rows))}
	for i, row := range t.Rows {
		fields := make(map[string]Field, len(row.Fields))
		for name, f := range row.Fields {
			if numeric[name] {
				f = f.Number()
			}
			fields[name] = f
		}
		out.Rows[i] = Row{Timestamp: row.Timestamp, Fields: fields}
	}
	return out
}

func columnIsNumeric(rows []Row, col string) bool {
	present := 0
	for _, row := range rows {
		f := row.Get(col)
		if f.Missing() {
			continue
		}
		if _, ok := f.Float(); !ok {
			return false
		}
		present++
	}
	return present > 0
}
