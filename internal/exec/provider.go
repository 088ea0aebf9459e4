package exec

import (
	"context"
	"net/http"

	"codesync/internal/models"
)

// one run submitted to a provider
type Request struct {
	Language models.Language
	Code     string
	Input    string
}

// normalized provider output; fields the provider did not report stay empty
type Result struct {
	Stdout   string
	Stderr   string
	TimeMs   int64
	MemoryKb *int64
	Status   string
}

// defines the interface for execution providers
type Provider interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	GetProviderName() string
}

// Settings carries the provider-independent configuration handed to factories.
type Settings struct {
	Endpoint   string
	APIKey     string
	APISecret  string
	SandboxURL string
	HTTPClient *http.Client
}

func (s Settings) Client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

// represents an error from an execution provider
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotConfigured builds the error used when no usable provider exists.
func NotConfigured(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Code: models.ErrCodeProviderNotConfigured, Message: message}
}

// Failed builds a PROVIDER_ERROR carrying the provider's own explanation as detail.
func Failed(provider, message, detail string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: models.ErrCodeProviderError, Message: message, Detail: detail, Err: err}
}
