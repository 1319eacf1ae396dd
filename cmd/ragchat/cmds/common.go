package cmds

import (
	"fmt"
	"io"

	"github.com/go-go-golems/ragchat/pkg/conversation"
	"github.com/go-go-golems/ragchat/pkg/ingest"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/settings"
	"github.com/go-go-golems/ragchat/pkg/transport"
	"github.com/go-go-golems/ragchat/pkg/vectordb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// loadSettings reads the settings from the global viper instance, which has
// the root persistent flags, the config file and RAGCHAT_* env vars bound.
func loadSettings() (*settings.Settings, error) {
	return settings.FromViper(viper.GetViper())
}

func newHTTPTransport(s *settings.Settings) (*transport.HTTPTransport, error) {
	return transport.NewHTTPTransport(s.BaseURL, s.URLOptions(), transport.WithTimeout(s.Timeout()))
}

func newIngestClient(s *settings.Settings) (*ingest.Client, error) {
	return ingest.NewClient(s.Ingest.EventURL, s.URLOptions(),
		ingest.WithEventKey(s.Ingest.EventKey),
		ingest.WithTimeout(s.Timeout()),
	)
}

func newVectorStore(s *settings.Settings) (*vectordb.Store, error) {
	return vectordb.NewStore(s.VectorDB.URL, s.URLOptions(),
		vectordb.WithCollection(s.VectorDB.Collection),
		vectordb.WithDimension(s.VectorDB.Dimension),
		vectordb.WithAPIKey(s.VectorDB.APIKey),
		vectordb.WithTimeout(s.Timeout()),
	)
}

func newSession(s *settings.Settings, t transport.Transport, options ...session.Option) *session.Session {
	options = append([]session.Option{
		session.WithTopK(s.TopK),
		session.WithApology(s.Apology),
		session.WithExchangeTimeout(s.Timeout()),
	}, options...)
	ret := session.New(t, options...)

	log.Debug().
		Str("session_id", ret.ID).
		Str("base_url", s.BaseURL).
		Int("top_k", s.TopK).
		Msg("Created session")

	return ret
}

// printReply writes an assistant reply followed by its sources.
func printReply(w io.Writer, reply *conversation.Message, sources []string) {
	if reply == nil {
		return
	}
	_, _ = fmt.Fprintln(w, reply.Content)
	if len(sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\nSources:")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "  - %s\n", s)
	}
}
