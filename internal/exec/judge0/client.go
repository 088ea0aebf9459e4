package judge0

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"codesync/internal/exec"
	"codesync/internal/models"
)

const providerName = "judge0"

// judge0 language ids
var languageIDs = map[models.Language]int{
	models.LangJavaScript: 63,
	models.LangPython:     71,
	models.LangJava:       62,
	models.LangCPP:        54,
}

type Client struct {
	submitURL string
	headers   map[string]string
	settings  exec.Settings
}

type submission struct {
	SourceCode             string `json:"source_code"`
	LanguageID             int    `json:"language_id"`
	Stdin                  string `json:"stdin"`
	RedirectStderrToStdout bool   `json:"redirect_stderr_to_stdout"`
}

// time is a decimal string of seconds and memory a number of KB, but both
// are read leniently
type submissionResult struct {
	Stdout        *string         `json:"stdout"`
	Stderr        *string         `json:"stderr"`
	CompileOutput *string         `json:"compile_output"`
	Time          json.RawMessage `json:"time"`
	Memory        json.RawMessage `json:"memory"`
	Status        *struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// NewClient requires an endpoint; RapidAPI-hosted endpoints also need an API key.
func NewClient(s exec.Settings) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(s.Endpoint), "/")
	if endpoint == "" {
		return nil, exec.NotConfigured(providerName, "EXEC_ENDPOINT is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, exec.NotConfigured(providerName, "EXEC_ENDPOINT is not a valid URL")
	}

	headers := map[string]string{}
	if strings.HasSuffix(u.Hostname(), "rapidapi.com") {
		if s.APIKey == "" {
			return nil, exec.NotConfigured(providerName, "EXEC_API_KEY is required for RapidAPI endpoints")
		}
		headers["X-RapidAPI-Key"] = s.APIKey
		headers["X-RapidAPI-Host"] = u.Hostname()
	}

	return &Client{
		submitURL: endpoint + "/submissions?base64_encoded=false&wait=true",
		headers:   headers,
		settings:  s,
	}, nil
}

func (c *Client) GetProviderName() string { return providerName }

func (c *Client) Execute(ctx context.Context, req exec.Request) (*exec.Result, error) {
	langID, ok := languageIDs[req.Language]
	if !ok {
		return nil, exec.ErrInvalidLanguage
	}

	resp, err := exec.PostJSON(ctx, c.settings.Client(), providerName, c.submitURL, c.headers, submission{
		SourceCode: req.Code,
		LanguageID: langID,
		Stdin:      req.Input,
	})
	if err != nil {
		return nil, err
	}

	var out submissionResult
	if err := exec.DecodeBody(providerName, resp, &out); err != nil {
		return nil, err
	}

	res := &exec.Result{
		Stdout:   deref(out.Stdout),
		Stderr:   deref(out.Stderr),
		TimeMs:   secondsToMillis(out.Time),
		MemoryKb: parseMemory(out.Memory),
	}
	if res.Stderr == "" {
		res.Stderr = deref(out.CompileOutput)
	}
	if out.Status != nil {
		res.Status = out.Status.Description
	}
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func numberish(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func secondsToMillis(raw json.RawMessage) int64 {
	secs, ok := numberish(raw)
	if !ok {
		return 0
	}
	return int64(math.Round(secs * 1000))
}

func parseMemory(raw json.RawMessage) *int64 {
	kb, ok := numberish(raw)
	if !ok || kb == 0 {
		return nil
	}
	v := int64(kb)
	return &v
}
