package procedure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kitchenlens/highlighter/internal/api"
	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Source kinds accepted in procedure.source.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// ErrUnknownSource is returned for an unrecognised procedure.source.
var ErrUnknownSource = errors.New("unknown procedure source")

// Source loads a recipe.
type Source interface {
	Load(ctx context.Context) (core.Recipe, error)
}

// FileSource reads a recipe from a JSON document on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (core.Recipe, error) {
	var recipe core.Recipe
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return recipe, fmt.Errorf("read procedure file: %w", err)
	}
	if err := json.Unmarshal(data, &recipe); err != nil {
		return recipe, fmt.Errorf("decode procedure file %s: %w", s.Path, err)
	}
	return recipe, nil
}

// HTTPSource fetches a recipe from the recipe server.
type HTTPSource struct {
	Client   *api.Client
	RecipeID string
}

func (s HTTPSource) Load(ctx context.Context) (core.Recipe, error) {
	return s.Client.Recipe(ctx, s.RecipeID)
}

// NewSource selects the source named by cfg.Source.
func NewSource(cfg config.ProcedureConfig) (Source, error) {
	switch cfg.Source {
	case SourceFile, "":
		return FileSource{Path: cfg.Path}, nil
	case SourceHTTP:
		return HTTPSource{Client: api.New(cfg.URL, cfg.APIKey), RecipeID: cfg.RecipeID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}
