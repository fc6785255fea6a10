package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kilupskalvis/sitedoc/internal/models"
)

// AdminClient communicates with the sitedoc-server admin API.
// It is distinct from HTTPClient: not site-scoped and does not implement SiteClient.
type AdminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAdminClient creates an admin API client. Warns if baseURL uses http://.
func NewAdminClient(baseURL, token string) *AdminClient {
	if strings.HasPrefix(baseURL, "http://") {
		fmt.Fprintf(os.Stderr, "warning: sending credentials over unencrypted HTTP connection\n")
	}
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// adminSitesListResp is the decoded response from GET /admin/sites.
type adminSitesListResp struct {
	Sites []string `json:"sites"`
}

// CompactResponse is the decoded response from POST /admin/prune.
type CompactResponse struct {
	Sites  int `json:"sites"`
	Pruned int `json:"pruned"`
	Failed int `json:"failed"`
}

func (c *AdminClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func (c *AdminClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
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

// CreateSite calls PUT /admin/sites/{site} to create a site document at
// version 1 owned by owner.
func (c *AdminClient) CreateSite(ctx context.Context, site, owner string, content map[string]any) (*models.Document, error) {
	req := &CreateSiteRequest{Owner: owner, Content: content}
	var resp DocumentResponse
	if err := c.doJSON(ctx, "PUT", c.baseURL+"/admin/sites/"+url.PathEscape(site), req, &resp); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	return resp.Document, nil
}

// ListSites calls GET /admin/sites and returns all site IDs.
func (c *AdminClient) ListSites(ctx context.Context) ([]string, error) {
	var resp adminSitesListResp
	if err := c.doJSON(ctx, "GET", c.baseURL+"/admin/sites", nil, &resp); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return resp.Sites, nil
}

// PruneSite calls POST /admin/sites/{site}/prune and returns how many
// checkpoints were removed.
func (c *AdminClient) PruneSite(ctx context.Context, site string) (int, error) {
	var resp PruneResponse
	if err := c.doJSON(ctx, "POST", c.baseURL+"/admin/sites/"+url.PathEscape(site)+"/prune", nil, &resp); err != nil {
		return 0, fmt.Errorf("prune site: %w", err)
	}
	return resp.Pruned, nil
}

// PruneAll calls POST /admin/prune to apply retention to every site.
func (c *AdminClient) PruneAll(ctx context.Context) (*CompactResponse, error) {
	var resp CompactResponse
	if err := c.doJSON(ctx, "POST", c.baseURL+"/admin/prune", nil, &resp); err != nil {
		return nil, fmt.Errorf("prune all: %w", err)
	}
	return &resp, nil
}
