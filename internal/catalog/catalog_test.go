package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jtdct/ingestor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_FirstSourceHits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Path, "/missav/search")
		json.NewEncoder(w).Encode(searchResponse{
			Success: true,
			Data:    &mockRecord,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", []string{"missav", "javguru"})
	rec := c.Search("SONE-760")
	require.NotNil(t, rec)
	assert.Equal(t, "SONE-760", rec.MovieCode)
	assert.EqualValues(t, 1, calls)
}

func TestSearch_FallsThroughToSecondSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missav/search" {
			json.NewEncoder(w).Encode(searchResponse{Success: false})
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Success: true, Data: &mockRecord})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", []string{"missav", "javguru"})
	rec := c.Search("SONE-760")
	require.NotNil(t, rec)
	assert.Equal(t, "SONE-760", rec.MovieCode)
}

func TestSearch_RetriesSequenceOnceWhenAllMiss(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		// miss on first pass through both sources (calls 1,2), hit on retry pass's
		// second source (call 4)
		if n == 4 {
			json.NewEncoder(w).Encode(searchResponse{Success: true, Data: &mockRecord})
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Success: false})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", []string{"missav", "javguru"})
	rec := c.Search("SONE-760")
	require.NotNil(t, rec)
	assert.EqualValues(t, 4, calls)
}

func TestSearch_ReturnsNilWhenAllSourcesMissTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Success: false})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", []string{"missav"})
	assert.Nil(t, c.Search("SONE-760"))
}

func TestSearch_NonTransportErrorIsLoggedAndSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missav/search" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{Success: true, Data: &mockRecord})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", []string{"missav", "javguru"})
	rec := c.Search("SONE-760")
	require.NotNil(t, rec)
	assert.Equal(t, "SONE-760", rec.MovieCode)
}

var mockRecord = models.CatalogRecord{
	MovieCode: "SONE-760",
	Title:     "Sample Title",
	Actress:   []string{"Sample Actress"},
}
