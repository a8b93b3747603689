// Package catalogue loads the object catalogue from an HCL file.
//
//	object "Salt" {
//	  code   = "Q1"
//	  visual = "salt_ring"
//	  offset = [0, 0.12, 0]
//	}
package catalogue

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/kitchenlens/highlighter/pkg/core"
)

type objectBlock struct {
	Name   string    `hcl:"name,label"`
	Code   string    `hcl:"code"`
	Visual string    `hcl:"visual,optional"`
	Offset []float64 `hcl:"offset,optional"`
}

type fileRoot struct {
	Objects []*objectBlock `hcl:"object,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// LoadFile parses an .hcl (or HCL-flavoured .json) catalogue file.
func LoadFile(path string) ([]core.ObjectSpec, error) {
	parser := hclparse.NewParser()

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if filepath.Ext(path) == ".json" {
		file, diags = parser.ParseJSONFile(path)
	} else {
		file, diags = parser.ParseHCLFile(path)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", path, diags)
	}
	return decode(path, file)
}

// Parse decodes catalogue source held in memory. filename is only used in
// diagnostics.
func Parse(src []byte, filename string) ([]core.ObjectSpec, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", filename, diags)
	}
	return decode(filename, file)
}

func decode(name string, file *hcl.File) ([]core.ObjectSpec, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode catalogue %s: %w", name, diags)
	}

	specs := make([]core.ObjectSpec, 0, len(root.Objects))
	for _, obj := range root.Objects {
		offset, err := toOffset(obj.Offset)
		if err != nil {
			return nil, fmt.Errorf("catalogue %s: object %q: %w", name, obj.Name, err)
		}
		specs = append(specs, core.ObjectSpec{
			Code:   core.Code(obj.Code),
			Name:   obj.Name,
			Visual: obj.Visual,
			Offset: offset,
		})
	}
	return specs, nil
}

func toOffset(v []float64) (core.Position3D, error) {
	switch len(v) {
	case 0:
		return core.Position3D{}, nil
	case 3:
		return core.Position3D{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return core.Position3D{}, fmt.Errorf("offset needs 3 components, got %d", len(v))
	}
}

// Merge appends extra to base, skipping entries whose code base already has.
// Inline configuration therefore wins over the file.
func Merge(base, extra []core.ObjectSpec) []core.ObjectSpec {
	seen := make(map[core.Code]struct{}, len(base))
	out := make([]core.ObjectSpec, 0, len(base)+len(extra))
	for _, s := range base {
		seen[s.Code] = struct{}{}
		out = append(out, s)
	}
	for _, s := range extra {
		if _, dup := seen[s.Code]; dup {
			continue
		}
		seen[s.Code] = struct{}{}
		out = append(out, s)
	}
	return out
}
