package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/serialscope/serialscope/internal/api"
	"github.com/serialscope/serialscope/internal/config"
)

// Client is an HTTP client for the serialscope API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// client builds an API client with the bearer token resolved from the
// environment or the config file.
func (a *App) client() *Client {
	return NewClient(a.apiAddr, clientToken(a.configPath))
}

// clientToken resolves the bearer token for client commands. The
// SERIALSCOPE_API_AUTH_TOKEN variable wins; the config file is the fallback.
func clientToken(configPath string) string {
	if token := os.Getenv("SERIALSCOPE_API_AUTH_TOKEN"); token != "" {
		return token
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "" // Config doesn't exist or is invalid, no token
	}
	return cfg.API.AuthToken
}

// GetStatus gets engine status
func (c *Client) GetStatus() (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.get("/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPorts gets all monitored ports
func (c *Client) GetPorts() (*api.PortListResponse, error) {
	var resp api.PortListResponse
	if err := c.get("/api/v1/ports", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send writes data to a monitored port
func (c *Client) Send(port, data string) error {
	var resp api.SuccessResponse
	return c.post("/api/v1/ports/send", api.SendRequest{Port: port, Data: data}, &resp)
}

// Shutdown shuts down the engine
func (c *Client) Shutdown() error {
	var resp api.SuccessResponse
	return c.post("/api/v1/shutdown", nil, &resp)
}

// LineParams contains parameters for line queries
type LineParams struct {
	Ports   []string
	Lines   int
	Pattern string
	Regex   bool
}

// buildLineQueryParams converts line parameters to URL query values
func buildLineQueryParams(params LineParams) url.Values {
	query := url.Values{}
	if len(params.Ports) > 0 {
		query.Set("port", strings.Join(params.Ports, ","))
	}
	if params.Lines > 0 {
		query.Set("lines", fmt.Sprintf("%d", params.Lines))
	}
	if params.Pattern != "" {
		query.Set("pattern", params.Pattern)
	}
	if params.Regex {
		query.Set("regex", "true")
	}
	return query
}

// GetLines gets buffered lines with optional filtering
func (c *Client) GetLines(params LineParams) (*api.LinesResponse, error) {
	path := "/api/v1/lines"
	if query := buildLineQueryParams(params); len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp api.LinesResponse
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamLines streams live lines and calls the callback for each event
func (c *Client) StreamLines(params LineParams, callback func(api.LineResponse)) error {
	query := buildLineQueryParams(params)
	query.Del("lines")

	path := "/api/v1/lines/stream"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.addAuthHeader(req)

	// The stream runs until the server closes it
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			if event, ok := parseSSELine(strings.TrimPrefix(line, "data: ")); ok {
				callback(event)
			}
		}
	}
}

// parseSSELine decodes one SSE data payload into a line event
func parseSSELine(data string) (api.LineResponse, bool) {
	var event api.LineResponse
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return api.LineResponse{}, false
	}
	return event, true
}

func (c *Client) get(path string, v interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) post(path string, body, v interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// decodeError turns an error envelope into a readable error
func decodeError(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Code != "" {
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}

// addAuthHeader adds the Authorization header if a token is available
func (c *Client) addAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
