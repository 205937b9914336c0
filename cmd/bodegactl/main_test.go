package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompose(t *testing.T) {
	out, err := run(t, "compose", "-q", "  tabby   cat ", "--friendly", "yes", "--min-rating", "4")
	require.NoError(t, err)
	assert.Equal(t, "GET /search/items?friendly=true&min_rating=4&q=tabby+cat\n", out)
}

func TestCompose_SiteFacetsAndPosition(t *testing.T) {
	out, err := run(t, "compose", "-t", "sites", "--lat", "40.7589", "--lng", "-73.9851", "--verified", "no", "--tag", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "GET /search/sites?lat=40.7589&lng=-73.9851&radius=5&verified=false\n", out)
}

func TestCompose_ZeroCountIsAConstraint(t *testing.T) {
	out, err := run(t, "compose", "-t", "sites", "--max-count", "0")
	require.NoError(t, err)
	assert.Equal(t, "GET /search/sites?max_count=0\n", out)
}

func TestCompose_RejectsInvalidInput(t *testing.T) {
	_, err := run(t, "compose", "--min-rating", "4", "--max-rating", "2")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = run(t, "compose", "-t", "dogs")
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)

	_, err = run(t, "compose", "--lat", "91", "--lng", "0")
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestSearch_Table(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/sites", r.URL.Path)
		assert.Equal(t, "40.7589", r.URL.Query().Get("lat"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"b1","name":"Midtown Deli","location":{"lat":40.759,"lng":-73.985},"distance":0.25},
			{"id":"b2","name":"Chelsea Bodega","location":{"lat":40.742,"lng":-74.004},"distance":2.4}
		],"pagination":{"offset":0,"limit":100,"total":2}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--api", srv.URL, "search", "-t", "sites", "--lat", "40.7589", "--lng", "-73.9851")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "Midtown Deli")
	assert.Contains(t, out, "250 m")
	assert.Contains(t, out, "2.4 km")
}

func TestFilters_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/filters", r.URL.Path)
		_, _ = w.Write([]byte(`{"categories":["Tabby"],"tags":["Lazy"],"rating_range":{"min":1,"max":5,"average":4.2}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--api", srv.URL, "--json", "filters")
	require.NoError(t, err)
	assert.Contains(t, out, `"categories": [`)
	assert.Contains(t, out, `"Tabby"`)
	assert.Contains(t, out, `"average": 4.2`)
}
