package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handler "github.com/samirrijal/bodegamap/internal/adapters/http"
)

// openAPIPath walks up from the package directory to api/openapi.yaml.
func openAPIPath(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatal("api/openapi.yaml not found")
	return ""
}

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromFile(openAPIPath(t))
	require.NoError(t, err)
	require.NoError(t, spec.Validate(context.Background()))
	return spec
}

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	spec := loadOpenAPI(t)

	for _, path := range []string{
		"/v1/health",
		"/v1/ready",
		"/search/filters",
		"/search/{entityType}",
		"/v1/sites/{id}",
		"/v1/items/{id}",
		"/graphql",
	} {
		assert.NotNil(t, spec.Paths.Find(path), "path %s", path)
	}
	for _, name := range []string{"Site", "Item", "GeoPosition", "Facets", "SearchResponse", "APIError", "Pagination", "Readiness"} {
		assert.NotNil(t, spec.Components.Schemas[name], "schema %s", name)
	}
}

func TestOpenAPI_Info(t *testing.T) {
	spec := loadOpenAPI(t)

	assert.Equal(t, "BodegaMap Search API", spec.Info.Title)
	assert.Equal(t, "1.0.0", spec.Info.Version)
	assert.NotEmpty(t, spec.Info.Description)
	assert.NotEmpty(t, spec.Servers)
}

func TestDocs_ServesDocument(t *testing.T) {
	prev := handler.SpecPath
	handler.SpecPath = openAPIPath(t)
	t.Cleanup(func() { handler.SpecPath = prev })
	app := setupApp(makeDeps())

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "BodegaMap Search API", doc.Info.Title)

	resp, err = app.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
}

func TestDocs_MissingDocumentIs404(t *testing.T) {
	prev := handler.SpecPath
	handler.SpecPath = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { handler.SpecPath = prev })
	app := setupApp(makeDeps())

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
