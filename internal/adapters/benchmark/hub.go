package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
	"github.com/example/evoloop/internal/version"
)

// DefaultHubURL is the public datasets-server endpoint.
const DefaultHubURL = "https://datasets-server.huggingface.co"

// pageSize is the largest page the rows API serves.
const pageSize = 100

// HubOptions configures a HubCorpus.
type HubOptions struct {
	BaseURL    string
	Dataset    string
	Config     string
	Split      string
	CachePath  string // optional JSON Lines cache; read before the network
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HubCorpus pages through the datasets-server rows API.
type HubCorpus struct {
	opts   HubOptions
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	instances []models.TaskInstance
}

// NewHubCorpus creates a corpus for one dataset split.
func NewHubCorpus(opts HubOptions) *HubCorpus {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHubURL
	}
	if opts.Config == "" {
		opts.Config = "default"
	}
	if opts.Split == "" {
		opts.Split = "test"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HubCorpus{opts: opts, client: client, logger: logger}
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int                 `json:"row_idx"`
		Row    models.TaskInstance `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// Instances returns every row of the split. Results are kept in memory and
// written to the cache file when one is configured.
func (c *HubCorpus) Instances(ctx context.Context) ([]models.TaskInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instances != nil {
		return c.instances, nil
	}

	if c.opts.CachePath != "" {
		if cached, err := NewFileCorpus(c.opts.CachePath).Instances(ctx); err == nil {
			c.instances = cached
			return cached, nil
		}
	}

	var all []models.TaskInstance
	for offset := 0; ; offset += pageSize {
		page, err := c.fetch(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			all = append(all, r.Row)
		}
		if len(page.Rows) == 0 || offset+pageSize >= page.NumRowsTotal {
			break
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("dataset %s (%s/%s) has no rows", c.opts.Dataset, c.opts.Config, c.opts.Split)
	}
	c.logger.InfoContext(ctx, "loaded benchmark from hub", "dataset", c.opts.Dataset, "split", c.opts.Split, "instances", len(all))

	if c.opts.CachePath != "" {
		if err := c.writeCache(all); err != nil {
			c.logger.WarnContext(ctx, "failed to write benchmark cache", "path", c.opts.CachePath, "error", err)
		}
	}

	c.instances = all
	return all, nil
}

func (c *HubCorpus) fetch(ctx context.Context, offset int) (*rowsResponse, error) {
	q := url.Values{}
	q.Set("dataset", c.opts.Dataset)
	q.Set("config", c.opts.Config)
	q.Set("split", c.opts.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rows request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read rows response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rows API returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var page rowsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode rows response: %w", err)
	}
	return &page, nil
}

func (c *HubCorpus) writeCache(instances []models.TaskInstance) error {
	if err := os.MkdirAll(filepath.Dir(c.opts.CachePath), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, instances); err != nil {
		return err
	}
	return os.WriteFile(c.opts.CachePath, buf.Bytes(), 0644)
}

// Ensure HubCorpus implements the interface
var _ secondary.Benchmark = (*HubCorpus)(nil)
