package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/razeghi71/dqflow/loader"
	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/table"
)

func sampleTable() *table.Table {
	t := table.NewTable([]string{"id", "name", "flow", "active", "installed", "geometry"})
	t.AddRow([]table.Value{
		table.IntVal(1), table.StrVal("north well"), table.FloatVal(2.5), table.BoolVal(true),
		table.DateVal(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)),
		table.GeomVal(geom.NewPointFlat(geom.XY, []float64{1, 2})),
	})
	t.AddRow([]table.Value{
		table.IntVal(2), table.Null(), table.FloatVal(4), table.BoolVal(false),
		table.Null(), table.Null(),
	})
	return t
}

func roundTrip(t *testing.T, format op.Format, ext string) *table.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out", "points"+ext)
	n, err := Write(sampleTable(), format, path)
	if err != nil {
		t.Fatalf("write %s: %v", format, err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows written, got %d", n)
	}
	back, err := loader.Load(path)
	if err != nil {
		t.Fatalf("load %s: %v", format, err)
	}
	if back.Len() != 2 {
		t.Fatalf("expected 2 rows back, got %d", back.Len())
	}
	return back
}

func checkCommon(t *testing.T, back *table.Table) {
	t.Helper()
	if got := back.Get(0, "name").AsString(); got != "north well" {
		t.Errorf("expected name to survive, got %q", got)
	}
	if !back.Get(1, "name").IsNull() {
		t.Errorf("expected null name, got %s", back.Get(1, "name").AsString())
	}
	if f, _ := back.Get(0, "flow").AsFloat(); f != 2.5 {
		t.Errorf("expected flow 2.5, got %v", f)
	}
	p, ok := back.Get(0, "geometry").Geom.(*geom.Point)
	if !ok || p.X() != 1 || p.Y() != 2 {
		t.Errorf("expected POINT (1 2), got %s", back.Get(0, "geometry").AsString())
	}
	if !back.Get(1, "geometry").IsNull() {
		t.Error("expected null geometry")
	}
	if got := back.Get(0, "installed").AsString(); got != "2021-03-04" {
		t.Errorf("expected date to survive, got %q", got)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	back := roundTrip(t, op.FormatCSV, ".csv")
	checkCommon(t, back)
	if back.Get(0, "active").Type != table.TypeBool {
		t.Error("expected boolean column")
	}
}

func TestGeoJSONRoundTrip(t *testing.T) {
	checkCommon(t, roundTrip(t, op.FormatGeoJSON, ".geojson"))
}

func TestParquetRoundTrip(t *testing.T) {
	back := roundTrip(t, op.FormatParquet, ".parquet")
	checkCommon(t, back)
	if back.Get(1, "id").Int != 2 {
		t.Errorf("expected id 2, got %s", back.Get(1, "id").AsString())
	}
}

func TestGeoPackageRoundTrip(t *testing.T) {
	back := roundTrip(t, op.FormatGPKG, ".gpkg")
	checkCommon(t, back)
	if back.ColIndex("fid") >= 0 {
		t.Error("fid should not surface as a column")
	}
	if v := back.Get(0, "active"); v.Type != table.TypeBool || !v.Bool {
		t.Errorf("expected boolean true, got %s", v.AsString())
	}
}

func TestGeoPackageReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.gpkg")
	if _, err := Write(sampleTable(), op.FormatGPKG, path); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(sampleTable(), op.FormatGPKG, path); err != nil {
		t.Fatalf("second write: %v", err)
	}
}

func TestCSVWritesWKT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.csv")
	if _, err := Write(sampleTable(), op.FormatCSV, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "POINT (1 2)") {
		t.Errorf("expected WKT geometry in %q", data)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := Write(sampleTable(), "shp", filepath.Join(t.TempDir(), "x.shp")); err == nil {
		t.Error("expected error")
	}
}
