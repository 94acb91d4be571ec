// Package sfsgeometry describes the known disk geometries an SFS image can
// be formatted with. One "reference" geometry (1024-byte blocks, 1024
// blocks total) is bit-exact and contractual. The other rows of the table
// are catalogued only: sfs.Mksfs takes no geometry argument and checks its
// fixed default geometry against the "reference" row alone, so no other
// row can be formatted.
package sfsgeometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dargueta/sfs/sfslayout"
)

// Geometry describes one named disk layout.
type Geometry struct {
	Slug             string `csv:"slug"`
	BlockSize        uint   `csv:"block_size"`
	TotalBlocks      uint   `csv:"total_blocks"`
	InodeTableBlocks uint   `csv:"inode_table_blocks"`
	MaxOpenFiles     uint   `csv:"max_open_files"`
}

// TotalSizeBytes returns the size, in bytes, of an image with this geometry.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.BlockSize) * int64(g.TotalBlocks)
}

// IsReferenceLayout reports whether g matches the bit-exact reference
// layout. Only this layout is implemented by sfs.Mksfs; the others are
// catalogued only.
func (g Geometry) IsReferenceLayout() bool {
	return g.BlockSize == sfslayout.BlockSize && g.TotalBlocks == sfslayout.TotalBlocks
}

//go:embed geometry.csv
var rawGeometryCSV string

var knownGeometries = map[string]Geometry{}

func init() {
	var rows []Geometry
	if err := gocsv.UnmarshalString(rawGeometryCSV, &rows); err != nil {
		panic(fmt.Sprintf("sfsgeometry: malformed embedded geometry.csv: %s", err))
	}
	for _, row := range rows {
		knownGeometries[strings.ToLower(row.Slug)] = row
	}
}

// Lookup returns the named geometry, or an error if no such geometry is
// known.
func Lookup(slug string) (Geometry, error) {
	g, ok := knownGeometries[strings.ToLower(slug)]
	if !ok {
		return Geometry{}, fmt.Errorf("no known disk geometry named %q", slug)
	}
	return g, nil
}

// Reference returns the bit-exact reference geometry.
func Reference() Geometry {
	g, err := Lookup("reference")
	if err != nil {
		panic("sfsgeometry: geometry.csv is missing its required \"reference\" row")
	}
	return g
}

// All returns every known geometry, for diagnostic/listing purposes.
func All() []Geometry {
	out := make([]Geometry, 0, len(knownGeometries))
	for _, g := range knownGeometries {
		out = append(out, g)
	}
	return out
}
