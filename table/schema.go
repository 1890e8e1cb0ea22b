package table

// ColumnType is the logical type reported for a column.
type ColumnType string

const (
	ColInteger  ColumnType = "integer"
	ColFloat    ColumnType = "float"
	ColString   ColumnType = "string"
	ColBoolean  ColumnType = "boolean"
	ColGeometry ColumnType = "geometry"
	ColDate     ColumnType = "date"
)

// Column describes one column of a table.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered list of columns of a table.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Column returns the column with the given name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Schema infers the logical column types from the table contents.
// Mixed integer/float columns widen to float; any other mix, or a column
// holding only nulls, is reported as string.
func (t *Table) Schema() Schema {
	cols := make([]Column, len(t.Columns))
	for i, name := range t.Columns {
		cols[i] = Column{Name: name, Type: t.columnType(i)}
	}
	return Schema{Columns: cols}
}

func (t *Table) columnType(idx int) ColumnType {
	seen := TypeNull
	for _, r := range t.Rows {
		if idx >= len(r.Values) {
			continue
		}
		vt := r.Values[idx].Type
		switch {
		case vt == TypeNull:
			continue
		case seen == TypeNull:
			seen = vt
		case seen == vt:
		case (seen == TypeInt && vt == TypeFloat) || (seen == TypeFloat && vt == TypeInt):
			seen = TypeFloat
		default:
			return ColString
		}
	}
	switch seen {
	case TypeInt:
		return ColInteger
	case TypeFloat:
		return ColFloat
	case TypeBool:
		return ColBoolean
	case TypeDate:
		return ColDate
	case TypeGeometry:
		return ColGeometry
	default:
		return ColString
	}
}
