package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenlens/highlighter/pkg/core"
)

const sample = `
object "Salt" {
  code   = "Q1"
  visual = "salt_ring"
  offset = [0, 0.12, 0]
}

object "Sugar" {
  code = "Q2"
}
`

func TestParse(t *testing.T) {
	specs, err := Parse([]byte(sample), "kitchen.hcl")
	require.NoError(t, err)

	assert.Equal(t, []core.ObjectSpec{
		{Code: "Q1", Name: "Salt", Visual: "salt_ring", Offset: core.Position3D{Y: 0.12}},
		{Code: "Q2", Name: "Sugar"},
	}, specs)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `object "Salt" {`, "failed to parse"},
		{"missing code", `object "Salt" {}`, "failed to decode"},
		{"bad offset", `object "Salt" {
  code   = "Q1"
  offset = [1, 2]
}`, "offset needs 3 components"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kitchen.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	specs, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, specs, 2)
}

func TestLoadFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kitchen.json")
	src := `{"object": {"Vinegar": {"code": "Q3", "visual": "vinegar_ring"}}}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	specs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, core.ObjectSpec{Code: "Q3", Name: "Vinegar", Visual: "vinegar_ring"}, specs[0])
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.hcl"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	inline := []core.ObjectSpec{{Code: "Q1", Name: "Salt (inline)"}}
	file := []core.ObjectSpec{{Code: "Q1", Name: "Salt"}, {Code: "Q2", Name: "Sugar"}}

	got := Merge(inline, file)
	assert.Equal(t, []core.ObjectSpec{
		{Code: "Q1", Name: "Salt (inline)"},
		{Code: "Q2", Name: "Sugar"},
	}, got)
}
