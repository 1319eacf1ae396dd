// Package ingest hands documents to the ingestion pipeline.
//
// Ingestion itself (loading, chunking, embedding, upserting) runs on the
// backend side as an event function. The client only copies the document
// into the shared upload directory and sends a rag/ingest_document event
// to the event server pointing at it.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-go-golems/ragchat/pkg/security"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEventURL  = "http://127.0.0.1:8288"
	DefaultUploadDir = "uploads"
	DefaultTimeout   = 30 * time.Second

	EventIngestDocument = "rag/ingest_document"

	// the dev server accepts any key, this is what the SDKs send without one
	devEventKey = "NO_EVENT_KEY_SET"
)

// Event is the body the event server accepts on POST /e/{key}.
type Event struct {
	ID   string      `json:"id,omitempty"`
	Name string      `json:"name"`
	Data interface{} `json:"data"`
}

// DocumentData is the payload of a rag/ingest_document event.
type DocumentData struct {
	DocumentPath string `json:"document_path"`
	SourceID     string `json:"source_id"`
}

type sendResponse struct {
	IDs    []string `json:"ids"`
	Status int      `json:"status"`
	Error  string   `json:"error,omitempty"`
}

type Client struct {
	httpClient *http.Client
	EventURL   string
	eventKey   string
}

type Option func(*Client)

func WithEventKey(key string) Option {
	return func(c *Client) {
		c.eventKey = key
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(eventURL string, urlOptions security.BackendURLOptions, options ...Option) (*Client, error) {
	normalized, err := security.NormalizeBackendURL(eventURL, urlOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid event server URL %q", eventURL)
	}
	ret := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		EventURL:   normalized,
	}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

// Send posts events and returns the ids the server assigned to them.
func (c *Client) Send(ctx context.Context, events ...Event) ([]string, error) {
	if len(events) == 0 {
		return []string{}, nil
	}
	body, err := json.Marshal(events)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode events")
	}

	key := c.eventKey
	if key == "" {
		key = devEventKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EventURL+"/e/"+key, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create event request")
	}
	req.Header.Set("Content-Type", "application/json")

	// #nosec G107 -- EventURL is validated in NewClient.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not reach event server")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "could not read event server response")
	}

	var sr sendResponse
	_ = json.Unmarshal(respBody, &sr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if sr.Error != "" {
			return nil, errors.Errorf("event server returned %d: %s", resp.StatusCode, sr.Error)
		}
		return nil, errors.Errorf("event server returned %d", resp.StatusCode)
	}
	if len(sr.IDs) != len(events) {
		return nil, errors.Errorf("event server acknowledged %d of %d events", len(sr.IDs), len(events))
	}

	return sr.IDs, nil
}

// IngestDocument asks the pipeline to ingest doc and returns the event id.
func (c *Client) IngestDocument(ctx context.Context, doc Document) (string, error) {
	ev := Event{
		ID:   uuid.NewString(),
		Name: EventIngestDocument,
		Data: DocumentData{
			DocumentPath: doc.Path,
			SourceID:     doc.SourceID,
		},
	}
	ids, err := c.Send(ctx, ev)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("event_id", ids[0]).
		Str("document_path", doc.Path).
		Str("source_id", doc.SourceID).
		Msg("Triggered document ingestion")

	return ids[0], nil
}
