package table

import (
	"testing"
	"time"

	"github.com/twpayne/go-geom"
)

func pointsTable() *Table {
	t := NewTable([]string{"id", "status", "depth", "geometry"})
	t.AddRow([]Value{IntVal(1), StrVal("active"), FloatVal(2.5), GeomVal(geom.NewPointFlat(geom.XY, []float64{1, 2}))})
	t.AddRow([]Value{IntVal(2), StrVal("retired"), IntVal(3), GeomVal(geom.NewPointFlat(geom.XY, []float64{3, 4}))})
	t.AddRow([]Value{IntVal(3), Null(), Null(), Null()})
	return t
}

func TestSchemaInference(t *testing.T) {
	s := pointsTable().Schema()
	want := []ColumnType{ColInteger, ColString, ColFloat, ColGeometry}
	if len(s.Columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(s.Columns))
	}
	for i, ct := range want {
		if s.Columns[i].Type != ct {
			t.Errorf("column %s: expected %s, got %s", s.Columns[i].Name, ct, s.Columns[i].Type)
		}
	}
}

func TestSchemaMixedTypesFallBackToString(t *testing.T) {
	tb := NewTable([]string{"v"})
	tb.AddRow([]Value{IntVal(1)})
	tb.AddRow([]Value{StrVal("x")})
	if got := tb.Schema().Columns[0].Type; got != ColString {
		t.Errorf("expected string, got %s", got)
	}

	empty := NewTable([]string{"v"})
	empty.AddRow([]Value{Null()})
	if got := empty.Schema().Columns[0].Type; got != ColString {
		t.Errorf("expected string for all-null column, got %s", got)
	}
}

func TestGeometryIndex(t *testing.T) {
	if idx := pointsTable().GeometryIndex(); idx != 3 {
		t.Errorf("expected geometry at 3, got %d", idx)
	}

	tb := NewTable([]string{"name", "shape"})
	tb.AddRow([]Value{StrVal("a"), GeomVal(geom.NewPointFlat(geom.XY, []float64{0, 0}))})
	if idx := tb.GeometryIndex(); idx != 1 {
		t.Errorf("expected geometry at 1, got %d", idx)
	}

	plain := NewTable([]string{"name"})
	plain.AddRow([]Value{StrVal("a")})
	if idx := plain.GeometryIndex(); idx != -1 {
		t.Errorf("expected no geometry column, got %d", idx)
	}
}

func TestCompare(t *testing.T) {
	if Compare(IntVal(1), FloatVal(1.5)) >= 0 {
		t.Error("expected 1 < 1.5")
	}
	if Compare(Null(), IntVal(1)) <= 0 {
		t.Error("expected nulls to sort last")
	}
	d1 := DateVal(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC))
	d2 := DateVal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if Compare(d1, d2) >= 0 {
		t.Error("expected earlier date first")
	}
	if Equal(Null(), Null()) {
		t.Error("null must not equal null")
	}
}

func TestValueStrings(t *testing.T) {
	if got := GeomVal(geom.NewPointFlat(geom.XY, []float64{1, 2})).AsString(); got != "POINT (1 2)" {
		t.Errorf("unexpected WKT %q", got)
	}
	if got := DateVal(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)).AsString(); got != "2024-05-06" {
		t.Errorf("unexpected date %q", got)
	}
	if GeomVal(nil).Type != TypeNull {
		t.Error("nil geometry should be null")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := pointsTable()
	c := orig.Clone()
	c.Rows[0].Values[1] = StrVal("changed")
	c.Columns[0] = "renamed"
	if orig.Rows[0].Values[1].Str != "active" || orig.Columns[0] != "id" {
		t.Error("clone shares row or column storage with original")
	}
}
