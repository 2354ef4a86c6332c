package scene

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/sightline/core"
)

const asciiCube = `solid block
  facet normal 0 0 -1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 1 1 0
    endloop
  endfacet
  facet normal 0 0 -1
    outer loop
      vertex 0 0 0
      vertex 1 1 0
      vertex 0 1 0
    endloop
  endfacet
endsolid block
`

func binarySTL(header string, tris [][3]core.Point3) []byte {
	var buf bytes.Buffer
	h := make([]byte, stlHeaderLen)
	copy(h, header)
	buf.Write(h)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(tris)))
	for _, tri := range tris {
		_ = binary.Write(&buf, binary.LittleEndian, [3]float32{0, 0, 1})
		for _, v := range tri {
			_ = binary.Write(&buf, binary.LittleEndian, [3]float32{float32(v.X), float32(v.Y), float32(v.Z)})
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func TestParseSTL_ASCII(t *testing.T) {
	tris, err := ParseSTL(strings.NewReader(asciiCube), nil)
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(tris) != 2 {
		t.Fatalf("got %d triangles, want 2", len(tris))
	}
	if tris[0].V1 != core.P3(1, 0, 0) {
		t.Fatalf("tris[0].V1 = %v", tris[0].V1)
	}
}

func TestParseSTL_ASCIIMalformed(t *testing.T) {
	bad := strings.Replace(asciiCube, "vertex 1 0 0", "vertex 1 zero 0", 1)
	if _, err := ParseSTL(strings.NewReader(bad), nil); !errors.Is(err, ErrMalformedSTL) {
		t.Fatalf("err = %v, want ErrMalformedSTL", err)
	}
	short := strings.Replace(asciiCube, "      vertex 1 1 0\n", "", 1)
	if _, err := ParseSTL(strings.NewReader(short), nil); !errors.Is(err, ErrMalformedSTL) {
		t.Fatalf("err = %v, want ErrMalformedSTL for a two-vertex facet", err)
	}
}

func TestParseSTL_Binary(t *testing.T) {
	in := [][3]core.Point3{
		{core.P3(0, 0, 0), core.P3(2, 0, 0), core.P3(0, 2, 0)},
		{core.P3(0, 0, 1), core.P3(2, 0, 1), core.P3(0, 2, 1)},
	}
	// Header starting with "solid" must still be read as binary.
	data := binarySTL("solid exported-by-cad", in)

	tris, err := ParseSTL(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(tris) != 2 || tris[1].V1 != core.P3(2, 0, 1) {
		t.Fatalf("triangles = %+v", tris)
	}

	truncated := binarySTL("cad", in)
	truncated = truncated[:len(truncated)-10]
	if _, err := ParseSTL(bytes.NewReader(truncated), nil); !errors.Is(err, ErrMalformedSTL) {
		t.Fatalf("truncated: err = %v, want ErrMalformedSTL", err)
	}
}

func TestLoadSTL_PlaceENU(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.stl")
	if err := os.WriteFile(path, []byte(asciiCube), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := core.NewLocalFrame(core.Geodetic{LatDeg: 40.04, LonDeg: -75.6})
	tris, err := LoadSTL(path, PlaceENU(frame, 10))
	if err != nil {
		t.Fatalf("LoadSTL: %v", err)
	}
	want := frame.ToECEF(10, 0, 0)
	if d := tris[0].V1.DistanceTo(want); d > 1e-6 {
		t.Fatalf("placed vertex off by %v m", d)
	}
	if a := tris[0].Area(); math.Abs(a-50) > 1e-3 {
		t.Fatalf("placed area = %v, want 50", a)
	}

	if _, err := LoadSTL(filepath.Join(dir, "missing.stl"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
