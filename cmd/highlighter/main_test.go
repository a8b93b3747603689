package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenlens/highlighter/internal/config"
)

const recipeJSON = `{
  "id": "omelette",
  "title": "Omelette",
  "steps": [
    {"instruction": "Add salt", "objectName": "Salt", "videoUrl": "https://videos/salt.mp4"},
    {"instruction": "Add sugar", "objectName": "Sugar"}
  ]
}`

const catalogueHCL = `
object "Pepper" {
  code   = "Q3"
  visual = "pepper_ring"
}

object "Other salt" {
  code = "Q1"
}
`

// writeSetup creates a config dir with an inline catalogue, a catalogue file
// and a procedure file, all under one temp dir.
func writeSetup(t *testing.T) (configDir, journalDir string) {
	t.Helper()
	t.Cleanup(viper.Reset)

	root := t.TempDir()
	journalDir = filepath.Join(root, "journal")
	recipe := filepath.Join(root, "procedure.json")
	cat := filepath.Join(root, "extra.hcl")
	require.NoError(t, os.WriteFile(recipe, []byte(recipeJSON), 0o644))
	require.NoError(t, os.WriteFile(cat, []byte(catalogueHCL), 0o644))

	cfg := `{
  "logsDir": "` + filepath.ToSlash(filepath.Join(root, "logs")) + `",
  "catalogueFile": "` + filepath.ToSlash(cat) + `",
  "objects": [
    {"code": "Q1", "name": "Salt", "visual": "salt_ring", "offset": {"y": 0.1}},
    {"code": "Q2", "name": "Sugar", "visual": "sugar_ring"}
  ],
  "effects": {"flashDuration": "5ms", "blinkInterval": "5ms"},
  "timer": {"minutes": 2},
  "procedure": {"source": "file", "path": "` + filepath.ToSlash(recipe) + `"},
  "storage": {"type": "memory", "memory": {"outputDir": "` + filepath.ToSlash(journalDir) + `", "compressOutput": false}},
  "status": {"address": "", "file": ""}
}`
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0o644))
	return root, journalDir
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())

	out.Reset()
	cmd = versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "commit:")
	assert.Contains(t, out.String(), appName+" "+version)
}

func TestLoadCatalogue_InlineWins(t *testing.T) {
	dir, _ := writeSetup(t)
	require.NoError(t, config.Load(dir))

	specs, err := loadCatalogue(viper.GetString("catalogueFile"))
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "Salt", specs[0].Name)
	assert.Equal(t, 0.1, specs[0].Offset.Y)
	assert.Equal(t, "Pepper", specs[2].Name)
}

func TestLoadCatalogue_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	config.LoadDefaults()

	_, err := loadCatalogue(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}

func TestCatalogueCmd(t *testing.T) {
	dir, _ := writeSetup(t)

	var out bytes.Buffer
	cmd := catalogueCmd()
	cmd.Flags().String("config", dir, "")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "pepper_ring")
	assert.Contains(t, out.String(), "3 objects")
}

func TestApp_EndToEnd(t *testing.T) {
	dir, journalDir := writeSetup(t)

	a := newApp(time.Now())
	a.setupLogging(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.start(ctx))

	in := strings.Join([]string{
		":VERSION:",
		`:DETECTIONS:|["Q1",[0.1,0,0.5],[0,0,0,1]]|["ZZ",[0,0,0]]`,
		":HIGHLIGHT:|Salt|true",
		":HIGHLIGHT:|Pepper|true",
		":STEP:CURRENT:",
		":TIMER:START:",
		":VOICE:|Timer",
		":NOPE:",
		":SAVE:",
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, a.serve(ctx, strings.NewReader(in), &out))
	a.shutdown()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, `["ok",":VERSION:",["`+version+`","`+date+`"]]`, lines[0])
	assert.Contains(t, lines[1], `"bound":1`)
	assert.Contains(t, lines[1], `"unrecognized":1`)
	assert.Equal(t, `["ok",":HIGHLIGHT:","ok"]`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `["error",":HIGHLIGHT:"`), lines[3])
	assert.Contains(t, lines[4], `"recipeId":"omelette"`)
	assert.Contains(t, lines[5], `"running":true`)
	assert.Contains(t, lines[6], `"visible":false`)
	assert.Equal(t, `["error",":NOPE:","no handler registered"]`, lines[7])
	assert.Equal(t, `["ok",":SAVE:"]`, lines[8])

	assert.True(t, a.scene.Visual("salt_ring").Active())
	assert.False(t, a.scene.Visual("timer_panel").Active())

	entries, err := os.ReadDir(journalDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "kitchen_"), entries[0].Name())
}
