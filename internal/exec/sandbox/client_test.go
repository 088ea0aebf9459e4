package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesync/internal/exec"
	"codesync/internal/models"
)

func TestRunSendsLimits(t *testing.T) {
	var got runRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"stdout":"ok","stderr":"","exit":{"code":0,"timedOut":false}}`))
	}))
	defer server.Close()

	c := NewClient(exec.Settings{SandboxURL: server.URL + "/", HTTPClient: server.Client()})
	res, err := c.Execute(context.Background(), exec.Request{Language: models.LangJava, Code: "class Main{}", Input: "1"})
	require.NoError(t, err)

	assert.Equal(t, "java", got.Language)
	assert.Equal(t, "1", got.Stdin)
	assert.Equal(t, int64(10000), got.Limits.WallTimeMs)
	assert.Equal(t, int64(512*1024*1024), got.Limits.MemoryBytes)
	assert.Equal(t, int64(1_000_000_000), got.Limits.NanoCPUs)

	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, "Accepted", res.Status)
	assert.Nil(t, res.MemoryKb)
}

func TestRunSandboxError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"sandbox_unavailable"}`))
	}))
	defer server.Close()

	c := NewClient(exec.Settings{SandboxURL: server.URL, HTTPClient: server.Client()})
	_, err := c.Execute(context.Background(), exec.Request{Language: models.LangPython, Code: "print(1)"})

	assert.True(t, errors.Is(err, ErrSandboxUnavailable))
	assert.Equal(t, models.ErrCodeProviderError, exec.ErrorCode(err))
}

func TestDefaultBaseURL(t *testing.T) {
	assert.Equal(t, defaultBaseURL, NewClient(exec.Settings{}).baseURL)
}

func TestExitStatus(t *testing.T) {
	assert.Equal(t, "", exitStatus(nil))
	assert.Equal(t, "Accepted", exitStatus(&runExit{Code: 0}))
	assert.Equal(t, "Time Limit Exceeded", exitStatus(&runExit{Code: 137, TimedOut: true}))
	assert.Equal(t, "Runtime Error (exit 1)", exitStatus(&runExit{Code: 1}))
}

func TestMapSandboxError(t *testing.T) {
	assert.NoError(t, mapSandboxError(""))
	assert.NoError(t, mapSandboxError("success"))
	assert.ErrorIs(t, mapSandboxError("sandbox_unavailable"), ErrSandboxUnavailable)
	assert.EqualError(t, mapSandboxError("unsupported_language"), "unsupported language")
	assert.EqualError(t, mapSandboxError("oom"), "oom")
}
