package export

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/razeghi71/dqflow/geo"
	"github.com/razeghi71/dqflow/table"
)

// srsUndefined is the GeoPackage id for an undefined cartesian system.
const srsUndefined = -1

const gpkgCoreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
	srs_id INTEGER
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
);
`

func sqliteType(t table.ColumnType) string {
	switch t {
	case table.ColInteger:
		return "INTEGER"
	case table.ColBoolean:
		return "BOOLEAN"
	case table.ColFloat:
		return "REAL"
	case table.ColGeometry:
		return "BLOB"
	case table.ColDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// writeGeoPackage writes t as a single layer. An existing file is replaced.
func writeGeoPackage(t *table.Table, path, layer string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`PRAGMA application_id = 1196444487`); err != nil {
		return fmt.Errorf("cannot initialise %s: %w", path, err)
	}
	if _, err := tx.Exec(gpkgCoreSchema); err != nil {
		return fmt.Errorf("cannot initialise %s: %w", path, err)
	}

	schema := t.Schema()
	gi := t.GeometryIndex()
	var defs []string
	if t.ColIndex("fid") < 0 {
		defs = append(defs, "fid INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	for i, c := range schema.Columns {
		typ := sqliteType(c.Type)
		if i == gi {
			typ = "GEOMETRY"
		}
		defs = append(defs, quoteIdent(c.Name)+" "+typ)
	}
	if _, err := tx.Exec(`CREATE TABLE ` + quoteIdent(layer) + ` (` + strings.Join(defs, ", ") + `)`); err != nil {
		return fmt.Errorf("cannot create layer %q: %w", layer, err)
	}

	dataType := "attributes"
	if gi >= 0 {
		dataType = "features"
		if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns VALUES (?, ?, 'GEOMETRY', ?, 0, 0)`,
			layer, t.Columns[gi], srsUndefined); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, ?, ?, ?)`,
		layer, dataType, layer, srsUndefined); err != nil {
		return err
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}
	stmt, err := tx.Prepare(`INSERT INTO ` + quoteIdent(layer) + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(marks, ", ") + `)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for ri, r := range t.Rows {
		for i, v := range r.Values {
			a, err := sqliteArg(v, schema.Columns[i].Type)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", ri, t.Columns[i], err)
			}
			args[i] = a
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("cannot insert row %d: %w", ri, err)
		}
	}
	return tx.Commit()
}

func sqliteArg(v table.Value, typ table.ColumnType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if typ == table.ColString {
		return v.AsString(), nil
	}
	switch v.Type {
	case table.TypeInt:
		return v.Int, nil
	case table.TypeFloat:
		return v.Float, nil
	case table.TypeBool:
		return v.Bool, nil
	case table.TypeGeometry:
		return geo.EncodeGPKG(v.Geom, srsUndefined)
	default:
		return v.AsString(), nil
	}
}
