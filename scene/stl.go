package scene

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/signalsfoundry/sightline/core"
)

// ErrMalformedSTL is returned for STL input that cannot be decoded.
var ErrMalformedSTL = errors.New("malformed STL")

// Placement maps model-space STL coordinates into ECEF.
type Placement func(core.Point3) core.Point3

// PlaceECEF treats STL coordinates as ECEF metres.
func PlaceECEF(p core.Point3) core.Point3 { return p }

// PlaceENU treats STL coordinates as east/north/up metres around frame's
// origin, scaled by scale.
func PlaceENU(frame core.LocalFrame, scale float64) Placement {
	if scale == 0 {
		scale = 1
	}
	return func(p core.Point3) core.Point3 {
		return frame.ToECEF(p.X*scale, p.Y*scale, p.Z*scale)
	}
}

// LoadSTL reads an ASCII or binary STL file.
func LoadSTL(path string, place Placement) ([]Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open STL: %w", err)
	}
	defer f.Close()

	tris, err := ParseSTL(f, place)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tris, nil
}

// ParseSTL decodes STL data. Input starting with "solid" is parsed as ASCII
// unless its size matches the binary layout exactly, since some exporters
// write "solid" into the binary header.
func ParseSTL(r io.Reader, place Placement) ([]Triangle, error) {
	if place == nil {
		place = PlaceECEF
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read STL: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) && !looksBinary(data) {
		return parseASCIISTL(bytes.NewReader(data), place)
	}
	return parseBinarySTL(data, place)
}

const (
	stlHeaderLen = 80
	stlFacetLen  = 50 // normal + 3 vertices (12 float32) + uint16 attribute
)

func looksBinary(data []byte) bool {
	if len(data) < stlHeaderLen+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderLen:])
	return uint64(len(data)) == uint64(stlHeaderLen+4)+uint64(n)*stlFacetLen
}

func parseASCIISTL(r io.Reader, place Placement) ([]Triangle, error) {
	scanner := bufio.NewScanner(r)
	var (
		tris     []Triangle
		vertices []core.Point3
		line     int
	)

	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "facet":
			vertices = vertices[:0]
		case "vertex":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformedSTL, line)
			}
			var xyz [3]float64
			for i := range xyz {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedSTL, line, err)
				}
				xyz[i] = v
			}
			vertices = append(vertices, place(core.P3(xyz[0], xyz[1], xyz[2])))
		case "endfacet":
			if len(vertices) != 3 {
				return nil, fmt.Errorf("%w: line %d: facet has %d vertices", ErrMalformedSTL, line, len(vertices))
			}
			tris = append(tris, NewTriangle(vertices[0], vertices[1], vertices[2]))
			vertices = vertices[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ASCII STL: %w", err)
	}
	return tris, nil
}

func parseBinarySTL(data []byte, place Placement) ([]Triangle, error) {
	if len(data) < stlHeaderLen+4 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a binary header", ErrMalformedSTL, len(data))
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderLen:])
	body := data[stlHeaderLen+4:]
	if uint64(len(body)) < uint64(count)*stlFacetLen {
		return nil, fmt.Errorf("%w: header declares %d facets, data holds %d", ErrMalformedSTL, count, len(body)/stlFacetLen)
	}

	readVec := func(b []byte) core.Point3 {
		f := func(off int) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
		}
		return place(core.P3(f(0), f(4), f(8)))
	}

	tris := make([]Triangle, 0, count)
	for i := uint32(0); i < count; i++ {
		facet := body[int(i)*stlFacetLen:]
		// Skip the stored normal; it is recomputed from the winding.
		v0 := readVec(facet[12:])
		v1 := readVec(facet[24:])
		v2 := readVec(facet[36:])
		tris = append(tris, NewTriangle(v0, v1, v2))
	}
	return tris, nil
}
