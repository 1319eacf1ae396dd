package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-go-golems/ragchat/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	path   string
	apiKey string
	body   map[string]interface{}
}

// fakeQdrant keeps one collection and its point count.
type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	count    int64
	requests []request
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("api-key"), body: body})

	notFound := func() {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection ` + "`docs`" + ` doesn't exist!"}}`))
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/count":
		if !f.exists {
			notFound()
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"count": f.count},
			"status": "ok",
		})
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/docs":
		if !f.exists {
			notFound()
			return
		}
		f.exists = false
		f.count = 0
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
		if f.exists {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"status":{"error":"collection already exists"}}`))
			return
		}
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeQdrant) Requests() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request{}, f.requests...)
}

func newTestStore(t *testing.T, f *fakeQdrant, options ...Option) *Store {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	s, err := NewStore(srv.URL, security.DefaultBackendURLOptions(), options...)
	require.NoError(t, err)
	return s
}

func TestCount(t *testing.T) {
	f := &fakeQdrant{exists: true, count: 42}
	s := newTestStore(t, f, WithAPIKey("k"))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	reqs := f.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "k", reqs[0].apiKey)
	assert.Equal(t, map[string]interface{}{"exact": true}, reqs[0].body)
}

func TestCount_MissingCollectionIsEmpty(t *testing.T) {
	s := newTestStore(t, &fakeQdrant{})
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestReset_RecreatesEmptyCollection(t *testing.T) {
	f := &fakeQdrant{exists: true, count: 10}
	s := newTestStore(t, f, WithDimension(8))

	require.NoError(t, s.Reset(context.Background()))
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	reqs := f.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodDelete, reqs[0].method)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.Equal(t, map[string]interface{}{
		"vectors": map[string]interface{}{"size": float64(8), "distance": "Cosine"},
	}, reqs[1].body)
}

func TestReset_MissingCollectionIsCreated(t *testing.T) {
	f := &fakeQdrant{}
	s := newTestStore(t, f)
	require.NoError(t, s.Reset(context.Background()))
	assert.True(t, f.exists)
}

func TestErrorsCarryServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":{"error":"invalid api-key"}}`))
	}))
	defer srv.Close()

	s, err := NewStore(srv.URL, security.DefaultBackendURLOptions())
	require.NoError(t, err)
	_, err = s.Count(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api-key")
}

func TestNewStore_Validates(t *testing.T) {
	_, err := NewStore(DefaultURL, security.StrictBackendURLOptions())
	require.Error(t, err)
	_, err = NewStore(DefaultURL, security.DefaultBackendURLOptions(), WithCollection(""))
	require.Error(t, err)
	_, err = NewStore(DefaultURL, security.DefaultBackendURLOptions(), WithDimension(0))
	require.Error(t, err)
}
