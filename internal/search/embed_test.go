package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers with vectors [len(input), index] in reverse order.
func fakeAPI(t *testing.T, failures int, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if int(n) <= failures {
			http.Error(w, "busy", status)
			return
		}

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "model-x", req.Model)
		assert.Equal(t, 2, req.Dimensions)

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(len(req.Input[i])), float32(i)}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "usage": map[string]int{"total_tokens": 7}})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(url string) *EmbeddingClient {
	c := NewEmbeddingClient("key", "model-x", url+"/v1/", 2)
	c.backoff = 0
	return c
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv, _ := fakeAPI(t, 0, 0)
	vectors, err := newTestClient(srv.URL).Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {3, 1}}, vectors)
}

func TestEmbedEmptyInput(t *testing.T) {
	vectors, err := NewEmbeddingClient("key", "m", "http://unused", 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	srv, calls := fakeAPI(t, 2, http.StatusServiceUnavailable)
	vectors, err := newTestClient(srv.URL).Embed(context.Background(), []string{"hi"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedGivesUpAfterMaxAttempts(t *testing.T) {
	srv, calls := fakeAPI(t, 10, http.StatusTooManyRequests)
	_, err := newTestClient(srv.URL).Embed(context.Background(), []string{"hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := fakeAPI(t, 1, http.StatusBadRequest)
	_, err := newTestClient(srv.URL).Embed(context.Background(), []string{"hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchAndQuery(t *testing.T) {
	srv, calls := fakeAPI(t, 0, 0)
	c := newTestClient(srv.URL)

	vectors, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {2, 1}, {3, 0}}, vectors)
	assert.Equal(t, int32(2), calls.Load())

	q, err := c.EmbedQuery(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0}, q)
	assert.Equal(t, 2, c.Dimensions())
}

func TestEmbedMissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient("key", "m", srv.URL, 1).WithHTTPClient(srv.Client())
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vector for input 1")
}
