package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenlens/highlighter/pkg/core"
)

func TestParseDetection(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name string
		in   string
		want core.DetectionEvent
	}{
		{
			name: "with rotation",
			in:   `["Q1",[0.1,0.2,0.3],[0,0,0,1]]`,
			want: core.DetectionEvent{Code: "Q1", Pose: core.Pose{
				Position: core.Position3D{X: 0.1, Y: 0.2, Z: 0.3},
				Rotation: core.IdentityRotation,
			}},
		},
		{
			name: "without rotation",
			in:   `["Q2",[1,2,3]]`,
			want: core.DetectionEvent{Code: "Q2", Pose: core.Pose{
				Position: core.Position3D{X: 1, Y: 2, Z: 3},
				Rotation: core.IdentityRotation,
			}},
		},
		{
			name: "numeric code",
			in:   `[4711,[0,0,0]]`,
			want: core.DetectionEvent{Code: "4711", Pose: core.Pose{Rotation: core.IdentityRotation}},
		},
		{
			name: "host quoted",
			in:   `"[""Q3"",[0,0,0]]"`,
			want: core.DetectionEvent{Code: "Q3", Pose: core.Pose{Rotation: core.IdentityRotation}},
		},
		{
			name: "empty code survives parsing",
			in:   `["",[0,0,0]]`,
			want: core.DetectionEvent{Code: "", Pose: core.Pose{Rotation: core.IdentityRotation}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseDetection(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDetection_Errors(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name string
		in   string
	}{
		{"not json", `Q1`},
		{"too short", `["Q1"]`},
		{"too long", `["Q1",[0,0,0],[0,0,0,1],1]`},
		{"bad position", `["Q1",[0,0]]`},
		{"position not array", `["Q1","here"]`},
		{"zero rotation", `["Q1",[0,0,0],[0,0,0,0]]`},
		{"bad code", `[{"a":1},[0,0,0]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseDetection(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestParseDetections_SkipsMalformed(t *testing.T) {
	p := NewParser(nil)

	events, skipped := p.ParseDetections([]string{
		`["Q1",[0,0,0]]`,
		`garbage`,
		`["Q2",[1,1,1]]`,
	})

	assert.Equal(t, 1, skipped)
	require.Len(t, events, 2)
	assert.Equal(t, core.Code("Q1"), events[0].Code)
	assert.Equal(t, core.Code("Q2"), events[1].Code)
}

func TestParseHighlight(t *testing.T) {
	p := NewParser(nil)

	name, show, err := p.ParseHighlight([]string{`"Salt"`, "false"})
	require.NoError(t, err)
	assert.Equal(t, "Salt", name)
	assert.False(t, show)

	name, show, err = p.ParseHighlight([]string{"Sugar"})
	require.NoError(t, err)
	assert.Equal(t, "Sugar", name)
	assert.True(t, show)

	_, _, err = p.ParseHighlight(nil)
	assert.ErrorIs(t, err, ErrMissingArgs)

	_, _, err = p.ParseHighlight([]string{`""`})
	assert.Error(t, err)

	_, _, err = p.ParseHighlight([]string{"Salt", "sometimes"})
	assert.Error(t, err)
}

func TestParseKeyword(t *testing.T) {
	p := NewParser(nil)

	kw, err := p.ParseKeyword([]string{`"Timer"`})
	require.NoError(t, err)
	assert.Equal(t, "Timer", kw)

	_, err = p.ParseKeyword(nil)
	assert.ErrorIs(t, err, ErrMissingArgs)
}
