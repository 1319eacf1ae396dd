package cmds

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/settings"
	"github.com/go-go-golems/ragchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []transport.ChatRequest
	fail     bool
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req transport.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		fail := f.fail
		f.mu.Unlock()

		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		last := req.Messages[len(req.Messages)-1].Content
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"answer":  "echo: " + last,
			"sources": []string{"doc.pdf"},
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (f *fakeBackend) Requests() []transport.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.ChatRequest{}, f.requests...)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	root := &cobra.Command{Use: "ragchat", SilenceUsage: true, SilenceErrors: true}
	settings.AddFlags(root.PersistentFlags())
	root.PersistentFlags().Bool("verbose", false, "Verbose output")
	require.NoError(t, settings.BindFlags(viper.GetViper(), root.PersistentFlags()))

	root.AddCommand(NewAskCommand(), NewHealthCommand(), NewConfigGroupCommand(),
		NewIngestCommand(), NewDBGroupCommand())

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestAsk_PrintsAnswerAndSources(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "", "--base-url", srv.URL, "--top-k", "3", "ask", "what", "is", "this?")
	require.NoError(t, err)

	assert.Contains(t, out, "echo: what is this?")
	assert.Contains(t, out, "Sources:\n  - doc.pdf")

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 3, reqs[0].TopK)
	assert.Equal(t, []transport.ChatMessage{{Role: "user", Content: "what is this?"}}, reqs[0].Messages)
}

func TestAsk_FailurePrintsApologyAndErrors(t *testing.T) {
	backend := &fakeBackend{fail: true}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "", "--base-url", srv.URL, "ask", "hello")
	require.Error(t, err)
	assert.Contains(t, out, "Sorry, I encountered an error.")
	assert.NotContains(t, out, "Sources:")
}

func TestAsk_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "", "ask", "   ")
	require.Error(t, err)
}

func TestAsk_InteractiveSendsGrowingHistory(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "second\n\nthird\n", "--base-url", srv.URL, "ask", "-i", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "echo: first")
	assert.Contains(t, out, "echo: second")
	assert.Contains(t, out, "echo: third")

	reqs := backend.Requests()
	require.Len(t, reqs, 3, "the blank line is not submitted")
	assert.Len(t, reqs[0].Messages, 1)
	assert.Len(t, reqs[1].Messages, 3)
	assert.Len(t, reqs[2].Messages, 5)
	assert.Equal(t, "assistant", reqs[2].Messages[3].Role)
	assert.Equal(t, "echo: second", reqs[2].Messages[3].Content)
}

func TestHealth(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "", "--base-url", srv.URL+"/", "health")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+": ok\n", out)
}

func TestHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := execute(t, "", "--base-url", url, "health")
	require.Error(t, err)
}

func TestStrictURL_RejectsLocalBackend(t *testing.T) {
	_, err := execute(t, "", "--strict-url", "health")
	require.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragchat", "config.yaml")

	out, err := execute(t, "", "--top-k", "9", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	s, err := settings.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, s.TopK)

	_, err = execute(t, "", "config", "init", path)
	require.Error(t, err, "existing file is not overwritten")

	_, err = execute(t, "", "--top-k", "2", "config", "init", "--force", path)
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "top-k: 2")
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "", "--base-url", "http://127.0.0.1:9999", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "base-url: http://127.0.0.1:9999")
	assert.Contains(t, out, "top-k: 5")
	assert.Contains(t, out, "collection: docs")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	out, err := execute(t, "",
		"--ingest-event-key", "evt-secret",
		"--vector-db-api-key", "qdrant-secret",
		"config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "evt-secret")
	assert.NotContains(t, out, "qdrant-secret")
	assert.Contains(t, out, "***")
}

func TestConfigInit_KeepsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "", "--vector-db-api-key", "qdrant-secret", "config", "init", path)
	require.NoError(t, err)

	s, err := settings.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "qdrant-secret", s.VectorDB.APIKey)
}

func TestOutcomeError(t *testing.T) {
	assert.NoError(t, outcomeError(session.Outcome{}))

	cause := errors.New("boom")
	assert.Equal(t, cause, outcomeError(session.Outcome{Failed: true, Cause: cause}))

	err := outcomeError(session.Outcome{Failed: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrExchangeFailed)
}

func TestAsk_PrintEvents(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "", "--base-url", srv.URL, "ask", "--print-events", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "echo: hello")

	submitted := strings.Index(out, `"type": "session.submitted"`)
	settled := strings.Index(out, `"type": "session.settled"`)
	require.NotEqual(t, -1, submitted)
	require.NotEqual(t, -1, settled)
	assert.Less(t, submitted, settled)
}

func TestAsk_Transcript(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	out, err := execute(t, "again\n", "--base-url", srv.URL, "ask", "-i", "--transcript", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "[user]: hello\n[assistant]: echo: hello\n[user]: again\n[assistant]: echo: again\n")
}

func TestInitLogger_Levels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, InitLogger(&LogConfig{Level: "debug", Quiet: true}))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	require.NoError(t, InitLogger(&LogConfig{Level: "bogus", Quiet: true}))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	logFile := filepath.Join(t.TempDir(), "ragchat.log")
	require.NoError(t, InitLogger(&LogConfig{Level: "warn", Quiet: true, LogFile: logFile}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
