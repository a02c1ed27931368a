package forecast

import "strings"

// Wind table columns.
const (
	FieldDirection        = "direction"
	FieldSpeed            = "speed"
	FieldValue            = "value"
	FieldSpeedMax         = "speed_max"
	FieldDirectionDegrees = "direction_degrees"
)

// compassDegrees maps lower-cased compass codes to degrees. "calma" is the
// upstream code for no wind.
var compassDegrees = map[string]float64{
	"n":     0,
	"ne":    45,
	"e":     90,
	"se":    135,
	"s":     180,
	"sw":    225,
	"w":     270,
	"nw":    315,
	"calma": -1,
}

// DirectionDegrees maps a compass code field to degrees. Unknown codes and
// non-string values give the missing value.
func DirectionDegrees(direction Field) Field {
	code, ok := direction.Text()
	if !ok {
		return Field{}
	}
	deg, ok := compassDegrees[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Field{}
	}
	return Scalar(deg)
}

// ReshapeWind merges the two records the upstream emits per timestamp (one
// with direction and mean speed, one with the gust as "value") into a single
// row with direction, speed, speed_max and direction_degrees.
//
// Re-applying ReshapeWind to its own output returns an equal table.
func ReshapeWind(t *Table) *Table {
	groups := groupByTimestamp(t.Rows)
	out := &Table{
		Date:        t.Date,
		Measurement: t.Measurement,
		Rows:        make([]Row, 0, len(groups)),
	}

	for _, g := range groups {
		direction := g.firstPresent(FieldDirection).Unwrap()

		gust := g.firstPresent(FieldValue)
		if gust.Missing() {
			gust = g.firstPresent(FieldSpeedMax)
		}

		out.Rows = append(out.Rows, Row{
			Timestamp: g.timestamp,
			Fields: map[string]Field{
				FieldDirection:        direction,
				FieldSpeed:            g.firstPresent(FieldSpeed).Unwrap().Number(),
				FieldSpeedMax:         gust.Unwrap().Number(),
				FieldDirectionDegrees: DirectionDegrees(direction),
			},
		})
	}
	return out
}
