package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kilupskalvis/sitedoc/internal/models"
)

// SiteClient defines the editor operations against one sitedoc server.
type SiteClient interface {
	Document(ctx context.Context, site string) (*models.Document, error)
	Patch(ctx context.Context, site string, version int64, changes []models.Change) (*models.WriteResult, error)
	History(ctx context.Context, site string, limit, offset int) ([]*models.Checkpoint, error)
	Restore(ctx context.Context, site, ref string) (*models.RestoreResult, error)
	Session(ctx context.Context, site string) (*models.EditSession, error)
}

// ErrVersionConflict is matched by *ConflictError.
var ErrVersionConflict = errors.New("version conflict")

// ConflictError is returned when a write was based on a stale version. It
// carries the server's live document so the caller can rebase.
type ConflictError struct {
	Message        string
	CurrentVersion int64
	ServerData     *models.Document
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// HTTPClient implements SiteClient over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based client. token is the caller's bearer
// JWT and may be empty for anonymous reads.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) siteURL(site, path string) string {
	return fmt.Sprintf("%s/api/v1/sites/%s%s", c.baseURL, url.PathEscape(site), path)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{"Content-Type": "application/json"}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Document returns the site's live document. Owner only.
func (c *HTTPClient) Document(ctx context.Context, site string) (*models.Document, error) {
	var resp DocumentResponse
	if err := c.doJSON(ctx, "GET", c.siteURL(site, ""), nil, &resp); err != nil {
		return nil, fmt.Errorf("get document %s: %w", site, err)
	}
	return resp.Document, nil
}

// Patch writes changes against version. A stale version returns *ConflictError.
func (c *HTTPClient) Patch(ctx context.Context, site string, version int64, changes []models.Change) (*models.WriteResult, error) {
	req := &PatchRequest{Version: version, Changes: changes}
	var resp WriteResponse
	if err := c.doJSON(ctx, "PATCH", c.siteURL(site, ""), req, &resp); err != nil {
		return nil, fmt.Errorf("patch %s: %w", site, err)
	}
	return &models.WriteResult{Version: resp.Version, CheckpointID: resp.CheckpointID}, nil
}

// History returns checkpoints newest first.
func (c *HTTPClient) History(ctx context.Context, site string, limit, offset int) ([]*models.Checkpoint, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	u := c.siteURL(site, "/history")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var resp HistoryResponse
	if err := c.doJSON(ctx, "GET", u, nil, &resp); err != nil {
		return nil, fmt.Errorf("get history %s: %w", site, err)
	}
	return resp.History, nil
}

// Restore rolls the site back to a checkpoint given by ID or sequence number.
// The restored content is not part of the response; fetch the document for it.
func (c *HTTPClient) Restore(ctx context.Context, site, ref string) (*models.RestoreResult, error) {
	var resp WriteResponse
	if err := c.doJSON(ctx, "POST", c.siteURL(site, "/restore/"+url.PathEscape(ref)), nil, &resp); err != nil {
		return nil, fmt.Errorf("restore %s to %s: %w", site, ref, err)
	}
	return &models.RestoreResult{
		Version:      resp.Version,
		CheckpointID: resp.CheckpointID,
		BackupID:     resp.BackupID,
	}, nil
}

// Session returns the caller's edit session for site.
func (c *HTTPClient) Session(ctx context.Context, site string) (*models.EditSession, error) {
	var resp SessionResponse
	if err := c.doJSON(ctx, "GET", c.siteURL(site, "/session"), nil, &resp); err != nil {
		return nil, fmt.Errorf("get session %s: %w", site, err)
	}
	return resp.Session, nil
}

// Watch streams version events for site until ctx is cancelled, the server
// closes the feed, or fn returns an error.
func (c *HTTPClient) Watch(ctx context.Context, site string, fn func(*VersionEvent) error) error {
	wsURL := c.siteURL(site, "/watch")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return fmt.Errorf("watch %s: %w", site, decodeError(resp))
		}
		return fmt.Errorf("watch %s: %w", site, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev VersionEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch %s: %w", site, err)
		}
		if err := fn(&ev); err != nil {
			return err
		}
	}
}

// RemoteError represents a structured error from the server.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	if resp.StatusCode == http.StatusConflict && errResp.Error == CodeConflict {
		return &ConflictError{
			Message:        errResp.Message,
			CurrentVersion: errResp.CurrentVersion,
			ServerData:     errResp.ServerData,
		}
	}

	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}
