package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codesync/internal/exec"
)

const (
	providerName   = "sandbox"
	defaultBaseURL = "http://localhost:8090"
)

// ErrSandboxUnavailable means the sandbox could not start a container.
var ErrSandboxUnavailable = errors.New("sandbox unavailable")

type Limits struct {
	WallTime time.Duration
	MemoryB  int64
	NanoCPUs int64
}

var defaultLimits = Limits{
	WallTime: 10 * time.Second,
	MemoryB:  512 * 1024 * 1024,
	NanoCPUs: 1_000_000_000,
}

// Client talks to the self-hosted container sandbox over its /run endpoint.
type Client struct {
	baseURL  string
	limits   Limits
	settings exec.Settings
	now      func() time.Time
}

type runRequest struct {
	Language string       `json:"language"`
	Code     string       `json:"code"`
	Stdin    string       `json:"stdin,omitempty"`
	Limits   limitsConfig `json:"limits"`
}

type limitsConfig struct {
	WallTimeMs  int64 `json:"wallTimeMs"`
	MemoryBytes int64 `json:"memoryBytes"`
	NanoCPUs    int64 `json:"nanoCPUs"`
}

type runExit struct {
	Code     int  `json:"code"`
	TimedOut bool `json:"timedOut"`
}

type runResponse struct {
	Stdout string   `json:"stdout"`
	Stderr string   `json:"stderr"`
	Exit   *runExit `json:"exit"`
	Error  string   `json:"error"`
}

func NewClient(s exec.Settings) *Client {
	base := strings.TrimRight(strings.TrimSpace(s.SandboxURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{baseURL: base, limits: defaultLimits, settings: s, now: time.Now}
}

func (c *Client) GetProviderName() string { return providerName }

func (c *Client) Execute(ctx context.Context, req exec.Request) (*exec.Result, error) {
	if !req.Language.Valid() {
		return nil, exec.ErrInvalidLanguage
	}

	started := c.now()
	resp, err := exec.PostJSON(ctx, c.settings.Client(), providerName, c.baseURL+"/run", nil, runRequest{
		Language: string(req.Language),
		Code:     req.Code,
		Stdin:    req.Input,
		Limits: limitsConfig{
			WallTimeMs:  limitsMillis(c.limits.WallTime, defaultLimits.WallTime),
			MemoryBytes: orDefault(c.limits.MemoryB, defaultLimits.MemoryB),
			NanoCPUs:    orDefault(c.limits.NanoCPUs, defaultLimits.NanoCPUs),
		},
	})
	if err != nil {
		return nil, err
	}

	var out runResponse
	if err := exec.DecodeBody(providerName, resp, &out); err != nil {
		return nil, err
	}
	if err := mapSandboxError(out.Error); err != nil {
		return nil, exec.Failed(providerName, "sandbox rejected the run", out.Error, err)
	}

	return &exec.Result{
		Stdout: out.Stdout,
		Stderr: out.Stderr,
		TimeMs: c.now().Sub(started).Milliseconds(),
		Status: exitStatus(out.Exit),
	}, nil
}

func exitStatus(exit *runExit) string {
	switch {
	case exit == nil:
		return ""
	case exit.TimedOut:
		return "Time Limit Exceeded"
	case exit.Code == 0:
		return "Accepted"
	default:
		return fmt.Sprintf("Runtime Error (exit %d)", exit.Code)
	}
}

func mapSandboxError(code string) error {
	switch code {
	case "", "success":
		return nil
	case "sandbox_unavailable":
		return ErrSandboxUnavailable
	case "unsupported_language":
		return errors.New("unsupported language")
	default:
		return errors.New(code)
	}
}

func limitsMillis(d, fallback time.Duration) int64 {
	if d <= 0 {
		d = fallback
	}
	return d.Milliseconds()
}

func orDefault(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}
