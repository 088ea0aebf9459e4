package exec

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"codesync/internal/metrics"
	"codesync/internal/models"
)

var (
	ErrInvalidLanguage = errors.New("unsupported language")
	ErrInvalidCode     = errors.New("code must be a non-empty string")
	ErrCodeTooLarge    = errors.New("code exceeds size limit")
)

// Gateway validates run requests and forwards them to the configured
// provider with a hard timeout. Calls are never retried.
type Gateway struct {
	provider     Provider
	timeout      time.Duration
	maxCodeBytes int
	logger       *zap.Logger

	// why provider is nil, reported as the PROVIDER_NOT_CONFIGURED detail
	configErr error
}

// provider may be nil, in which case every run fails with PROVIDER_NOT_CONFIGURED.
func NewGateway(provider Provider, timeout time.Duration, maxCodeBytes int, logger *zap.Logger) *Gateway {
	return &Gateway{provider: provider, timeout: timeout, maxCodeBytes: maxCodeBytes, logger: logger}
}

// WithConfigError records why no provider could be built.
func (g *Gateway) WithConfigError(err error) *Gateway {
	g.configErr = err
	return g
}

func (g *Gateway) ProviderName() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.GetProviderName()
}

// Validate checks language and code before any provider call.
func (g *Gateway) Validate(lang models.Language, code string) error {
	if !lang.Valid() {
		return ErrInvalidLanguage
	}
	if code == "" {
		return ErrInvalidCode
	}
	if len(code) > g.maxCodeBytes {
		return ErrCodeTooLarge
	}
	return nil
}

// Execute runs req once. Failures are returned as *ProviderError or one of the
// validation sentinels.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := g.Validate(req.Language, req.Code); err != nil {
		return nil, err
	}
	if g.provider == nil {
		metrics.ObserveExecution("none", models.ErrCodeProviderNotConfigured)
		return nil, g.notConfigured()
	}

	name := g.provider.GetProviderName()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.provider.Execute(ctx, req)
	if err != nil {
		perr := g.normalizeError(ctx, name, err)
		g.logger.Warn("execution failed",
			zap.String("provider", name),
			zap.String("language", string(req.Language)),
			zap.String("code", perr.Code),
			zap.Error(err))
		metrics.ObserveExecution(name, perr.Code)
		return nil, perr
	}
	if res == nil {
		res = &Result{}
	}

	g.logger.Debug("execution finished",
		zap.String("provider", name),
		zap.String("language", string(req.Language)),
		zap.Duration("elapsed", time.Since(start)))
	metrics.ObserveExecution(name, "ok")
	return res, nil
}

func (g *Gateway) notConfigured() *ProviderError {
	perr := NotConfigured("none", "no execution provider configured")
	if g.configErr == nil {
		return perr
	}
	var cause *ProviderError
	if errors.As(g.configErr, &cause) {
		perr.Provider = cause.Provider
		perr.Detail = cause.Message
		return perr
	}
	perr.Detail = g.configErr.Error()
	return perr
}

func (g *Gateway) normalizeError(ctx context.Context, name string, err error) *ProviderError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Failed(name, "execution timed out", "timeout after "+g.timeout.String(), err)
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return Failed(name, "execution request failed", err.Error(), err)
}

// ErrorCode maps an Execute/Validate error to its wire code.
func ErrorCode(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		return perr.Code
	case errors.Is(err, ErrInvalidLanguage):
		return models.ErrCodeInvalidLanguage
	case errors.Is(err, ErrInvalidCode):
		return models.ErrCodeInvalidCode
	case errors.Is(err, ErrCodeTooLarge):
		return models.ErrCodeCodeTooLarge
	default:
		return models.ErrCodeInternal
	}
}
