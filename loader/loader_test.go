package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/table"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "points.csv", "id, status, installed, geometry\n"+
		"1, active, 2021-03-04, POINT (1 2)\n"+
		"2, , 2022-01-01, \n")

	tbl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.Len())
	}
	row := tbl.Rows[0].Values
	if row[0].Type != table.TypeInt || row[1].Str != "active" {
		t.Errorf("unexpected first row %v", row)
	}
	if row[2].Type != table.TypeDate || row[2].AsString() != "2021-03-04" {
		t.Errorf("expected date, got %s", row[2].AsString())
	}
	if _, ok := row[3].Geom.(*geom.Point); !ok {
		t.Errorf("expected point geometry, got %v", row[3])
	}
	if !tbl.Rows[1].Values[1].IsNull() || !tbl.Rows[1].Values[3].IsNull() {
		t.Error("empty cells should be null")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.json", `[{"a": 1, "b": "x"}, {"a": 2.5}]`)
	tbl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 || tbl.Get(1, "a").Float != 2.5 || !tbl.Get(1, "b").IsNull() {
		t.Errorf("unexpected table %s", tbl)
	}
}

func TestLoadGeoJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "zones.geojson", `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"zone":"A","pop":10},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"zone":"B"},"geometry":null}
	]}`)
	tbl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"pop", "zone", "geometry"}
	for i, c := range want {
		if tbl.Columns[i] != c {
			t.Fatalf("expected columns %v, got %v", want, tbl.Columns)
		}
	}
	if _, ok := tbl.Get(0, "geometry").Geom.(*geom.Polygon); !ok {
		t.Error("expected polygon geometry")
	}
	if !tbl.Get(1, "geometry").IsNull() || !tbl.Get(1, "pop").IsNull() {
		t.Error("expected nulls in second feature")
	}
}

func TestLoadMissingAndUnsupported(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := Load("data.shp"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "water_points.csv", "kind\nwell\ntap\nwell\n")
	writeFile(t, dir, "water_points.json", `[{"kind":"dam"}]`)
	writeFile(t, dir, "bad name.csv", "x\n1\n")
	writeFile(t, dir, "notes.txt", "hello")

	c := NewCatalog(dir)
	list, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Format != "csv" {
		t.Fatalf("expected only water_points.csv, got %v", list)
	}

	values, err := c.ColumnValues("water_points", "kind", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0] != "well" || values[1] != "tap" {
		t.Errorf("unexpected values %v", values)
	}

	schema, err := c.Columns("water_points")
	if err != nil {
		t.Fatal(err)
	}
	if col, ok := schema.Column("kind"); !ok || col.Type != table.ColString {
		t.Errorf("unexpected schema %v", schema)
	}

	if _, err := c.Resolve("roads"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := c.ColumnValues("water_points", "nope", 0); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected not found for column, got %v", err)
	}
}
