package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// Export is the root JSON structure of an exported session.
type Export struct {
	Session      core.Session              `json:"session"`
	Complete     bool                      `json:"complete"`
	Completion   *core.CompletionRecord    `json:"completion,omitempty"`
	Bindings     []core.BindingRecord      `json:"bindings"`
	Highlights   []core.HighlightRecord    `json:"highlights"`
	Unrecognized []core.UnrecognizedRecord `json:"unrecognized"`
}

var unsafeNameChars = strings.NewReplacer(" ", "_", ":", "_", "/", "_", `\`, "_")

// exportJSON writes the session to a JSON file, gzipped when configured.
// Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := unsafeNameChars.Replace(b.session.Name)
	if name == "" {
		name = "session"
	}
	filename := fmt.Sprintf("%s_%s.json", name, b.session.StartedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() Export {
	export := Export{
		Session:      *b.session,
		Complete:     b.completion != nil,
		Completion:   b.completion,
		Bindings:     append([]core.BindingRecord{}, b.bindings...),
		Highlights:   append([]core.HighlightRecord{}, b.highlights...),
		Unrecognized: append([]core.UnrecognizedRecord{}, b.unrecognized...),
	}
	return export
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(data); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
