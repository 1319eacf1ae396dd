// Package vectordb manages the collection the backend retrieves chunks from.
// It only counts and resets, searching and upserting stay on the backend.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-go-golems/ragchat/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultURL        = "http://localhost:6333"
	DefaultCollection = "docs"
	DefaultDimension  = 3072
	DefaultTimeout    = 30 * time.Second

	distanceCosine = "Cosine"
)

type countRequest struct {
	Exact bool `json:"exact"`
}

type countResponse struct {
	Result struct {
		Count int64 `json:"count"`
	} `json:"result"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// Store talks to the Qdrant REST API.
type Store struct {
	httpClient *http.Client
	URL        string
	Collection string
	Dimension  int
	apiKey     string
}

type Option func(*Store)

func WithCollection(collection string) Option {
	return func(s *Store) {
		s.Collection = collection
	}
}

// WithDimension sets the vector size used when the collection is recreated.
func WithDimension(dimension int) Option {
	return func(s *Store) {
		s.Dimension = dimension
	}
}

func WithAPIKey(key string) Option {
	return func(s *Store) {
		s.apiKey = key
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.httpClient.Timeout = timeout
	}
}

func NewStore(rawURL string, urlOptions security.BackendURLOptions, options ...Option) (*Store, error) {
	normalized, err := security.NormalizeBackendURL(rawURL, urlOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid vector store URL %q", rawURL)
	}
	ret := &Store{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		URL:        normalized,
		Collection: DefaultCollection,
		Dimension:  DefaultDimension,
	}
	for _, o := range options {
		o(ret)
	}
	if ret.Collection == "" {
		return nil, errors.New("collection name is required")
	}
	if ret.Dimension <= 0 {
		return nil, errors.Errorf("vector dimension must be positive, got %d", ret.Dimension)
	}
	return ret, nil
}

func (s *Store) collectionURL() string {
	return s.URL + "/collections/" + url.PathEscape(s.Collection)
}

// Count returns the exact number of points. A missing collection counts as empty.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var resp countResponse
	status, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", countRequest{Exact: true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "could not count points in %s", s.Collection)
	}
	return resp.Result.Count, nil
}

// Reset drops the collection and recreates it empty, with cosine distance.
func (s *Store) Reset(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return errors.Wrapf(err, "could not delete collection %s", s.Collection)
	}

	body := createCollectionRequest{
		Vectors: vectorParams{Size: s.Dimension, Distance: distanceCosine},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return errors.Wrapf(err, "could not create collection %s", s.Collection)
	}

	log.Info().
		Str("collection", s.Collection).
		Int("dimension", s.Dimension).
		Msg("Reset vector collection")
	return nil
}

// do sends body as JSON and decodes a 2xx answer into out. The status code is
// returned even when err is set.
func (s *Store) do(ctx context.Context, method string, u string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, errors.Wrap(err, "could not create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	// #nosec G107 -- URL is validated in NewStore.
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "could not reach vector store")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "could not read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Status.Error != "" {
			return resp.StatusCode, errors.Errorf("vector store returned %d: %s", resp.StatusCode, er.Status.Error)
		}
		return resp.StatusCode, errors.Errorf("vector store returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, errors.Wrap(err, "could not decode response")
		}
	}
	return resp.StatusCode, nil
}
