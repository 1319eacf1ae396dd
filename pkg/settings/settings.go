package settings

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/ragchat/pkg/ingest"
	"github.com/go-go-golems/ragchat/pkg/security"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/transport"
	"github.com/go-go-golems/ragchat/pkg/vectordb"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings configures the chat client. Keys match the command line flags so
// that a config file, RAGCHAT_* environment variables and flags all map onto
// the same viper keys. The sub-sections use nested keys, see BindFlags.
type Settings struct {
	BaseURL        string `yaml:"base-url" mapstructure:"base-url"`
	TimeoutSeconds int    `yaml:"timeout" mapstructure:"timeout"`
	TopK           int    `yaml:"top-k" mapstructure:"top-k"`
	StrictURL      bool   `yaml:"strict-url" mapstructure:"strict-url"`
	Apology        string `yaml:"apology,omitempty" mapstructure:"apology"`
	LogEvents      bool   `yaml:"log-events,omitempty" mapstructure:"log-events"`

	Ingest   *IngestSettings   `yaml:"ingest" mapstructure:"ingest"`
	VectorDB *VectorDBSettings `yaml:"vector-db" mapstructure:"vector-db"`
}

// IngestSettings configures where documents are copied and which event
// server is told to ingest them.
type IngestSettings struct {
	EventURL  string `yaml:"event-url" mapstructure:"event-url"`
	EventKey  string `yaml:"event-key,omitempty" mapstructure:"event-key"`
	UploadDir string `yaml:"upload-dir" mapstructure:"upload-dir"`
}

type VectorDBSettings struct {
	URL        string `yaml:"url" mapstructure:"url"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	Dimension  int    `yaml:"dimension" mapstructure:"dimension"`
	APIKey     string `yaml:"api-key,omitempty" mapstructure:"api-key"`
}

const redacted = "***"

func NewSettings() *Settings {
	return &Settings{
		BaseURL:        transport.DefaultBaseURL,
		TimeoutSeconds: int(transport.DefaultTimeout.Seconds()),
		TopK:           transport.DefaultTopK,
		Apology:        session.DefaultApology,
		Ingest: &IngestSettings{
			EventURL:  ingest.DefaultEventURL,
			UploadDir: ingest.DefaultUploadDir,
		},
		VectorDB: &VectorDBSettings{
			URL:        vectordb.DefaultURL,
			Collection: vectordb.DefaultCollection,
			Dimension:  vectordb.DefaultDimension,
		},
	}
}

// Clone is a deep copy, the sub-sections are not shared.
func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Redacted returns a copy with the event key and the vector store api key
// masked. s is left untouched.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	if ret.Ingest != nil && ret.Ingest.EventKey != "" {
		ret.Ingest.EventKey = redacted
	}
	if ret.VectorDB != nil && ret.VectorDB.APIKey != "" {
		ret.VectorDB.APIKey = redacted
	}
	return ret
}

func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func (s *Settings) URLOptions() security.BackendURLOptions {
	if s.StrictURL {
		return security.StrictBackendURLOptions()
	}
	return security.DefaultBackendURLOptions()
}

func (s *Settings) Validate() error {
	if s.TopK <= 0 {
		return errors.Errorf("top-k must be positive, got %d", s.TopK)
	}
	if s.TimeoutSeconds < 0 {
		return errors.Errorf("timeout must not be negative, got %d", s.TimeoutSeconds)
	}
	if _, err := security.NormalizeBackendURL(s.BaseURL, s.URLOptions()); err != nil {
		return errors.Wrap(err, "base-url")
	}
	if s.Ingest == nil || s.VectorDB == nil {
		return errors.New("ingest and vector-db sections must not be empty")
	}
	if s.Ingest.UploadDir == "" {
		return errors.New("ingest.upload-dir must not be empty")
	}
	if s.VectorDB.Collection == "" {
		return errors.New("vector-db.collection must not be empty")
	}
	if s.VectorDB.Dimension <= 0 {
		return errors.Errorf("vector-db.dimension must be positive, got %d", s.VectorDB.Dimension)
	}
	return nil
}

// AddFlags registers the settings flags with their defaults on fs.
func AddFlags(fs *pflag.FlagSet) {
	d := NewSettings()
	fs.String("base-url", d.BaseURL, "Base URL of the RAG chat backend")
	fs.Int("timeout", d.TimeoutSeconds, "Timeout for a single exchange, in seconds (0 disables)")
	fs.Int("top-k", d.TopK, "Number of document chunks the backend should retrieve")
	fs.Bool("strict-url", d.StrictURL, "Only allow https backends on public hosts")
	fs.String("apology", d.Apology, "Assistant reply shown when an exchange fails")
	fs.Bool("log-events", d.LogEvents, "Log every session event")

	fs.String("ingest-event-url", d.Ingest.EventURL, "Base URL of the event server that runs document ingestion")
	fs.String("ingest-event-key", d.Ingest.EventKey, "Event key for the event server (empty for a dev server)")
	fs.String("ingest-upload-dir", d.Ingest.UploadDir, "Directory documents are copied to before ingestion")

	fs.String("vector-db-url", d.VectorDB.URL, "Base URL of the vector store")
	fs.String("vector-db-collection", d.VectorDB.Collection, "Vector store collection holding the document chunks")
	fs.Int("vector-db-dimension", d.VectorDB.Dimension, "Vector size used when the collection is recreated")
	fs.String("vector-db-api-key", d.VectorDB.APIKey, "API key for the vector store")
}

// nestedFlags maps the flags of the sub-sections onto their nested keys.
var nestedFlags = map[string]string{
	"ingest.event-url":     "ingest-event-url",
	"ingest.event-key":     "ingest-event-key",
	"ingest.upload-dir":    "ingest-upload-dir",
	"vector-db.url":        "vector-db-url",
	"vector-db.collection": "vector-db-collection",
	"vector-db.dimension":  "vector-db-dimension",
	"vector-db.api-key":    "vector-db-api-key",
}

// BindFlags binds every flag of fs to v, and the sub-section flags to their
// nested keys as well, so that "--vector-db-url" and a "vector-db.url" config
// entry land in the same field.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return errors.Wrap(err, "could not bind flags")
	}
	for key, name := range nestedFlags {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "could not bind flag %s", name)
		}
	}
	return nil
}

// FromViper reads the settings from v, falling back to defaults for unset keys.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func LoadFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings file %s", path)
	}
	s := NewSettings()
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, errors.Wrapf(err, "could not parse settings file %s", path)
	}
	return s, nil
}

func (s *Settings) YAML() ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode settings")
	}
	return b, nil
}

// Save writes the settings as YAML, creating parent directories as needed.
func (s *Settings) Save(path string) error {
	b, err := s.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create directory for %s", path)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write settings file %s", path)
	}
	return nil
}
