package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaCheckHealthMatchesTaggedModel(t *testing.T) {
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"mistral:latest"}]}`))
	})

	generator := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL + "/", Model: "mistral"})
	require.True(t, generator.CheckHealth(context.Background()))

	missing := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL, Model: "phi3"})
	require.False(t, missing.CheckHealth(context.Background()))
}

func TestOllamaCheckHealthFailures(t *testing.T) {
	statusServer := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.False(t, NewOllamaGenerator(OllamaConfig{BaseURL: statusServer.URL}).CheckHealth(context.Background()))

	garbageServer := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})
	require.False(t, NewOllamaGenerator(OllamaConfig{BaseURL: garbageServer.URL}).CheckHealth(context.Background()))

	slowServer := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"models":[{"name":"mistral"}]}`))
	})
	slow := NewOllamaGenerator(OllamaConfig{BaseURL: slowServer.URL, HealthTimeout: 20 * time.Millisecond})
	require.False(t, slow.CheckHealth(context.Background()))

	unreachable := NewOllamaGenerator(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
	require.False(t, unreachable.CheckHealth(context.Background()))
}

func TestOllamaGenerateSendsPayload(t *testing.T) {
	var received map[string]interface{}
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"model":"mistral","response":"{\"total_score\": 30}","done":true}`))
	})

	generator := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL, Model: "mistral"})
	text, err := generator.Generate(context.Background(), "assess this", "you are an assessor")
	require.NoError(t, err)
	require.Equal(t, `{"total_score": 30}`, text)

	require.Equal(t, "mistral", received["model"])
	require.Equal(t, "assess this", received["prompt"])
	require.Equal(t, "you are an assessor", received["system"])
	require.Equal(t, false, received["stream"])
}

func TestOllamaGenerateOmitsEmptySystem(t *testing.T) {
	var received map[string]interface{}
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	})

	_, err := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL}).Generate(context.Background(), "p", "")
	require.NoError(t, err)
	require.NotContains(t, received, "system")
}

func TestOllamaGenerateNonSuccessStatus(t *testing.T) {
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'mistral' not found"}`))
	})

	_, err := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL}).Generate(context.Background(), "p", "s")
	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	require.Equal(t, http.StatusNotFound, serviceErr.StatusCode)
	require.False(t, serviceErr.Timeout)
	require.Contains(t, err.Error(), "status 404")
}

func TestOllamaGenerateTimeout(t *testing.T) {
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"response":"late"}`))
	})

	generator := NewOllamaGenerator(OllamaConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	_, err := generator.Generate(context.Background(), "p", "s")
	var serviceErr *ServiceError
	require.True(t, errors.As(err, &serviceErr))
	require.True(t, serviceErr.Timeout)
}

func TestOllamaDefaults(t *testing.T) {
	generator := NewOllamaGenerator(OllamaConfig{})
	require.Equal(t, "mistral", generator.Model())
	require.Equal(t, ProviderOllama, generator.Provider())
	require.Equal(t, DefaultGenerationTimeout, generator.cfg.Timeout)
	require.Equal(t, DefaultHealthTimeout, generator.cfg.HealthTimeout)
}
