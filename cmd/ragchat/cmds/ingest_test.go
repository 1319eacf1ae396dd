package cmds

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-go-golems/ragchat/pkg/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventServer struct {
	mu     sync.Mutex
	events []ingest.Event
}

func (f *fakeEventServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evs []ingest.Event
	if err := json.NewDecoder(r.Body).Decode(&evs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.events = append(f.events, evs...)
	f.mu.Unlock()

	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.ID
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ids": ids, "status": 200})
}

func (f *fakeEventServer) Events() []ingest.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingest.Event{}, f.events...)
}

func TestIngest_UploadsAndSendsEvents(t *testing.T) {
	events := &fakeEventServer{}
	srv := httptest.NewServer(events)
	defer srv.Close()

	srcDir := t.TempDir()
	pdf := filepath.Join(srcDir, "manual.pdf")
	txt := filepath.Join(srcDir, "faq.txt")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(txt, []byte("faq"), 0o644))
	uploads := filepath.Join(t.TempDir(), "uploads")

	out, err := execute(t, "", "--ingest-event-url", srv.URL, "--ingest-upload-dir", uploads, "ingest", pdf, txt)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingestion triggered for: manual.pdf")
	assert.Contains(t, out, "Ingestion triggered for: faq.txt")

	evs := events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, ingest.EventIngestDocument, evs[0].Name)
	data, ok := evs[0].Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, filepath.Join(uploads, "manual.pdf"), data["document_path"])
	assert.Equal(t, "manual.pdf", data["source_id"])

	b, err := os.ReadFile(filepath.Join(uploads, "faq.txt"))
	require.NoError(t, err)
	assert.Equal(t, "faq", string(b))
}

func TestIngest_UnsupportedFileFails(t *testing.T) {
	events := &fakeEventServer{}
	srv := httptest.NewServer(events)
	defer srv.Close()

	doc := filepath.Join(t.TempDir(), "notes.docx")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	_, err := execute(t, "", "--ingest-event-url", srv.URL, "--ingest-upload-dir", t.TempDir(), "ingest", doc)
	require.Error(t, err)
	assert.Empty(t, events.Events())
}

// fakeCollection answers the count, delete and create calls for one collection.
type fakeCollection struct {
	mu      sync.Mutex
	count   int64
	deletes int
}

func (f *fakeCollection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPost:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]int64{"count": f.count}})
	case http.MethodDelete:
		f.deletes++
		f.count = 0
		_, _ = w.Write([]byte(`{"result":true}`))
	case http.MethodPut:
		_, _ = w.Write([]byte(`{"result":true}`))
	}
}

func (f *fakeCollection) Deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

func TestDB_CountAndReset(t *testing.T) {
	coll := &fakeCollection{count: 12}
	srv := httptest.NewServer(coll)
	defer srv.Close()

	out, err := execute(t, "", "--vector-db-url", srv.URL, "db", "count")
	require.NoError(t, err)
	assert.Equal(t, "docs: 12 vectors\n", out)

	_, err = execute(t, "", "--vector-db-url", srv.URL, "db", "reset")
	require.Error(t, err, "a non-empty collection needs --yes")
	assert.Equal(t, 0, coll.Deletes())

	out, err = execute(t, "", "--vector-db-url", srv.URL, "db", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "12 vectors deleted")
	assert.Equal(t, 1, coll.Deletes())

	out, err = execute(t, "", "--vector-db-url", srv.URL, "db", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "already empty")
	assert.Equal(t, 1, coll.Deletes())
}
