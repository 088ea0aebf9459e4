package jdoodle

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"codesync/internal/exec"
	"codesync/internal/models"
)

const (
	providerName    = "jdoodle"
	defaultEndpoint = "https://api.jdoodle.com/v1/execute"
)

type languageSpec struct {
	language     string
	versionIndex string
}

var languages = map[models.Language]languageSpec{
	models.LangJavaScript: {language: "nodejs", versionIndex: "4"},
	models.LangPython:     {language: "python3", versionIndex: "4"},
	models.LangJava:       {language: "java", versionIndex: "4"},
	models.LangCPP:        {language: "cpp17", versionIndex: "0"},
}

type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	settings     exec.Settings
	now          func() time.Time
}

type executeRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Script       string `json:"script"`
	Stdin        string `json:"stdin"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
}

type executeResponse struct {
	Output     *string         `json:"output"`
	StatusCode int             `json:"statusCode"`
	Memory     json.RawMessage `json:"memory"`
	Error      string          `json:"error"`
}

// NewClient needs the client id (EXEC_API_KEY) and secret (EXEC_API_SECRET).
func NewClient(s exec.Settings) (*Client, error) {
	if s.APIKey == "" || s.APISecret == "" {
		return nil, exec.NotConfigured(providerName, "EXEC_API_KEY and EXEC_API_SECRET are required")
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint:     endpoint,
		clientID:     s.APIKey,
		clientSecret: s.APISecret,
		settings:     s,
		now:          time.Now,
	}, nil
}

func (c *Client) GetProviderName() string { return providerName }

// Execute reports wall-clock time; jdoodle does not return a run time.
func (c *Client) Execute(ctx context.Context, req exec.Request) (*exec.Result, error) {
	spec, ok := languages[req.Language]
	if !ok {
		return nil, exec.ErrInvalidLanguage
	}

	started := c.now()
	resp, err := exec.PostJSON(ctx, c.settings.Client(), providerName, c.endpoint, nil, executeRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Script:       req.Code,
		Stdin:        req.Input,
		Language:     spec.language,
		VersionIndex: spec.versionIndex,
	})
	if err != nil {
		return nil, err
	}

	var out executeResponse
	if err := exec.DecodeBody(providerName, resp, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, exec.Failed(providerName, "provider rejected the run", out.Error, nil)
	}

	res := &exec.Result{
		TimeMs:   c.now().Sub(started).Milliseconds(),
		MemoryKb: parseMemory(out.Memory),
	}
	if out.Output != nil {
		res.Stdout = *out.Output
	}
	return res, nil
}

// memory arrives as either a number or a numeric string
func parseMemory(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	s := string(raw)
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		s = quoted
	}
	kb, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || kb == 0 {
		return nil
	}
	return &kb
}
