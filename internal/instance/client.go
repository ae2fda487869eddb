// pattern: Imperative Shell
package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"floorcast/internal/conn"
	"floorcast/internal/feed"
	"floorcast/internal/sse"
)

// maxMessageSize bounds a single websocket message. Generated images are
// sent inline as base64.
const maxMessageSize = 32 << 20

// Client is a thin HTTP client for a running floorcast backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout; streams are long-lived and end through
	// context cancellation.
	streamClient *http.Client

	mu          sync.Mutex
	lastEventID string
}

// NewClient creates a Client targeting the given base URL.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 10*time.Second)
}

// NewClientWithTimeout creates a Client with a custom timeout for
// request/response calls. Uploads of large plans may need more than the default.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the backend address this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadResult is the backend's answer to POST /upload.
type UploadResult struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
}

// Upload sends the floor plan at path to the backend, which starts
// generating renders for it. Progress arrives on the event stream.
func (c *Client) Upload(ctx context.Context, path, style string) (UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return UploadResult{}, fmt.Errorf("failed to write form part: %w", err)
	}
	// style is always sent; empty means the backend's default.
	if err := mw.WriteField("style", style); err != nil {
		return UploadResult{}, fmt.Errorf("failed to write style field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return UploadResult{}, err
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return UploadResult{}, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return result, nil
}

// Images fetches every image the backend has generated so far.
func (c *Client) Images(ctx context.Context) ([]feed.Image, error) {
	body, err := c.get(ctx, "/images")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Images []feed.Image `json:"images"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	return resp.Images, nil
}

// Health is the backend's self-report from /api/health.
type Health struct {
	Status      string `json:"status"`
	Uploads     bool   `json:"uploads"`
	Subscribers int    `json:"subscribers"`
	Images      int    `json:"images"`
	PendingJobs int    `json:"pending_jobs"`
	Dropped     int    `json:"dropped"`
}

// Health fetches the backend's status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	body, err := c.get(ctx, "/api/health")
	if err != nil {
		return Health{}, err
	}
	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		return Health{}, fmt.Errorf("failed to decode health: %w", err)
	}
	return h, nil
}

// get performs a GET request and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to floorcast: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := extractErrorMessage(body)
		return nil, fmt.Errorf("floorcast returned status %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}

// extractErrorMessage attempts to extract the error message from a JSON response body.
// If the body is not valid JSON or doesn't have an "error" field, returns the raw body string.
func extractErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(body))
}

// StreamDialer returns a dialer for the server-sent event feed at GET
// /stream. Reconnects resume after the last event id this client saw.
func (c *Client) StreamDialer() conn.Dialer {
	return conn.DialerFunc(c.dialStream)
}

func (c *Client) dialStream(ctx context.Context) (conn.Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", sse.ContentType)
	req.Header.Set("Cache-Control", "no-cache")
	if id := c.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to floorcast: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, extractErrorMessage(body))
	}

	return &streamSource{
		body:   resp.Body,
		reader: sse.NewReader(resp.Body),
		client: c,
	}, nil
}

// LastEventID returns the id of the most recent stream event received.
func (c *Client) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

// ResetStream forgets the stream position so the next dial starts live.
func (c *Client) ResetStream() {
	c.mu.Lock()
	c.lastEventID = ""
	c.mu.Unlock()
}

func (c *Client) setLastEventID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.lastEventID = id
	c.mu.Unlock()
}

type streamSource struct {
	body   io.ReadCloser
	reader *sse.Reader
	client *Client
}

func (s *streamSource) Next(ctx context.Context) ([]byte, error) {
	// The request context already unblocks reads on cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := s.reader.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	s.client.setLastEventID(frame.ID)
	return frame.Data, nil
}

func (s *streamSource) Close() error {
	return s.body.Close()
}

// SocketDialer returns a dialer for the websocket mirror of the feed at GET /ws.
func (c *Client) SocketDialer() conn.Dialer {
	return conn.DialerFunc(c.dialSocket)
}

func (c *Client) dialSocket(ctx context.Context) (conn.Source, error) {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	ws, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to floorcast: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	ws.SetReadLimit(maxMessageSize)
	return &socketSource{ws: ws}, nil
}

type socketSource struct {
	ws *websocket.Conn
}

func (s *socketSource) Next(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := s.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (s *socketSource) Close() error {
	return s.ws.Close(websocket.StatusNormalClosure, "client closed")
}
