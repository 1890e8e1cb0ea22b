// Command gen writes the sample datasets used by the examples in the README
// and for manual testing: testdata/data/water_points.parquet and
// testdata/data/districts.csv.
package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"

	parquet "github.com/parquet-go/parquet-go"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

type WaterPoint struct {
	ID       int64   `parquet:"id"`
	Status   string  `parquet:"status"`
	District string  `parquet:"district"`
	Depth    float64 `parquet:"depth"`
	Geometry []byte  `parquet:"geometry"`
}

var (
	districts = []string{"north", "south", "east", "west"}
	statuses  = []string{"active", "active", "active", "broken", "abandoned"}
)

const points = 200

func main() {
	dir := filepath.Join("testdata", "data")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal(err)
	}
	if err := writePoints(filepath.Join(dir, "water_points.parquet")); err != nil {
		log.Fatal(err)
	}
	if err := writeDistricts(filepath.Join(dir, "districts.csv")); err != nil {
		log.Fatal(err)
	}
}

func writePoints(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewPCG(7, 42))
	w := parquet.NewGenericWriter[WaterPoint](f)
	for i := range points {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		g, err := wkb.Marshal(geom.NewPointFlat(geom.XY, []float64{x, y}), binary.LittleEndian)
		if err != nil {
			return err
		}
		p := WaterPoint{
			ID:       int64(i + 1),
			Status:   statuses[rng.IntN(len(statuses))],
			District: districtOf(x, y),
			Depth:    5 + rng.Float64()*60,
			Geometry: g,
		}
		if _, err := w.Write([]WaterPoint{p}); err != nil {
			return err
		}
	}
	return w.Close()
}

// districtOf splits the 1000x1000 extent into four quadrants.
func districtOf(x, y float64) string {
	switch {
	case y >= 500 && x < 500:
		return "north"
	case y < 500 && x >= 500:
		return "south"
	case x >= 500:
		return "east"
	default:
		return "west"
	}
}

func writeDistricts(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewPCG(3, 9))
	fmt.Fprintln(f, "district,population")
	for _, d := range districts {
		fmt.Fprintf(f, "%s,%d\n", d, 500+rng.IntN(5000))
	}
	return nil
}
