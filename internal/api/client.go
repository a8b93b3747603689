// Package api talks to the recipe server: procedure recipes come from it and
// finished journal exports can be sent back.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrRecipeNotFound is returned when the server has no recipe with the id.
var ErrRecipeNotFound = errors.New("recipe not found")

const (
	healthPath  = "/healthcheck"
	recipesPath = "/recipes/"
	uploadPath  = "/api/v1/sessions/add"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New returns a client for baseURL. apiKey is sent as a bearer token when set.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// Healthcheck reports whether the server answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return expectOK(resp, "healthcheck")
}

// Recipe fetches one recipe by id.
func (c *Client) Recipe(ctx context.Context, id string) (core.Recipe, error) {
	var recipe core.Recipe
	if id == "" {
		return recipe, fmt.Errorf("%w: empty id", ErrRecipeNotFound)
	}

	req, err := c.newRequest(ctx, http.MethodGet, recipesPath+url.PathEscape(id), nil)
	if err != nil {
		return recipe, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return recipe, fmt.Errorf("recipe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return recipe, fmt.Errorf("%w: %s", ErrRecipeNotFound, id)
	}
	if err := expectOK(resp, "recipe"); err != nil {
		return recipe, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&recipe); err != nil {
		return recipe, fmt.Errorf("failed to decode recipe: %w", err)
	}
	if recipe.ID == "" {
		recipe.ID = id
	}
	return recipe, nil
}

// Upload posts a journal export as multipart form data, streaming the file.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(filePath), meta))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, uploadPath, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	return expectOK(resp, "upload")
}

func writeUploadForm(form *multipart.Writer, file io.Reader, name string, meta core.UploadMetadata) error {
	fields := [][2]string{
		{"filename", name},
		{"sessionName", meta.SessionName},
		{"recipeId", meta.RecipeID},
		{"sessionDuration", strconv.FormatFloat(meta.Duration, 'f', -1, 64)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy export: %w", err)
	}
	return form.Close()
}

func expectOK(resp *http.Response, op string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("%s returned status %d", op, resp.StatusCode)
}
