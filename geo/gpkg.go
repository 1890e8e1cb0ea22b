package geo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage binary header flags.
const (
	gpkgLittleEndian = 0x01
	gpkgEmpty        = 0x10
)

var errShortBlob = errors.New("geopackage blob too short")

// EncodeGPKG wraps g in a GeoPackage geometry blob with an XY envelope.
func EncodeGPKG(g geom.T, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}

	var buf bytes.Buffer
	buf.Write([]byte{'G', 'P', 0})
	s, err := decompose(g)
	if err != nil {
		return nil, err
	}
	flags := byte(gpkgLittleEndian)
	if s.empty() {
		flags |= gpkgEmpty
	} else {
		flags |= 1 << 1
	}
	buf.WriteByte(flags)
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	if !s.empty() {
		_ = binary.Write(&buf, binary.LittleEndian, [4]float64{s.minX, s.maxX, s.minY, s.maxY})
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// DecodeGPKG parses a GeoPackage geometry blob. Plain WKB is accepted too.
func DecodeGPKG(b []byte) (geom.T, error) {
	if len(b) < 2 || b[0] != 'G' || b[1] != 'P' {
		return wkb.Unmarshal(b)
	}
	if len(b) < 8 {
		return nil, errShortBlob
	}
	flags := b[3]
	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelope = 0
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("invalid geopackage envelope indicator %d", (flags>>1)&0x07)
	}
	start := 8 + envelope
	if len(b) < start {
		return nil, errShortBlob
	}
	g, err := wkb.Unmarshal(b[start:])
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return g, nil
}
