package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapics/gallery-backend/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestHTTPClientGet(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok","count":2}`))
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	var result struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	err := client.Get(context.Background(), server.URL, map[string]string{"Authorization": "Bearer token"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Name)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, "Bearer token", gotAuth.Load())
}

func TestHTTPClientGetNotFound(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such image", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	var result map[string]interface{}
	err := client.Get(context.Background(), server.URL, nil, &result)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int64(1), calls.Load(), "non-429 statuses are not retried")
}

func TestHTTPClientGetServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	var result map[string]interface{}
	err := client.Get(context.Background(), server.URL, nil, &result)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, int64(1), calls.Load())
}

func TestHTTPClientGetInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	var result map[string]interface{}
	err := client.Get(context.Background(), server.URL, nil, &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestHTTPClientGetContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var result map[string]interface{}
	err := client.Get(ctx, server.URL, nil, &result)
	assert.Error(t, err)
}
