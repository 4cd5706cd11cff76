package catalog

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	util_log "github.com/openhep/evtkit/pkg/util/log"
)

const (
	datasetsPath = "/datasets"
	filesPath    = "/files"
)

// defaultEndpoints maps each recognized instance to the reader endpoint of
// its registry.
var defaultEndpoints = map[Instance]string{
	InstanceGlobal: "https://cmsweb.cern.ch/dbs/prod/global/DBSReader",
	InstancePhys01: "https://cmsweb.cern.ch/dbs/prod/phys01/DBSReader",
	InstancePhys02: "https://cmsweb.cern.ch/dbs/prod/phys02/DBSReader",
	InstancePhys03: "https://cmsweb.cern.ch/dbs/prod/phys03/DBSReader",
	InstanceCAF:    "https://cmsweb.cern.ch/dbs/caf/global/DBSReader",
}

// Config for catalog clients.
type Config struct {
	Timeout   time.Duration     `yaml:"timeout"`
	Endpoints map[string]string `yaml:"endpoints"`
}

// RegisterFlags adds the flags required to config this to the given FlagSet.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.DurationVar(&cfg.Timeout, "catalog.timeout", 30*time.Second, "Timeout for catalog HTTP requests.")
}

func (cfg Config) endpoint(instance Instance) (string, bool) {
	if e, ok := cfg.Endpoints[string(instance)]; ok {
		return e, true
	}
	e, ok := defaultEndpoints[instance]
	return e, ok
}

// Reader fetches dataset and file records from a metadata catalog. It is
// implemented by Client and by test fakes.
type Reader interface {
	DatasetRecord(ctx context.Context, name string) (DatasetRecord, error)
	FileRecords(ctx context.Context, name string) ([]FileRecord, error)
}

type httpClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client queries one catalog instance over HTTP. Queries are synchronous
// and blocking; successful responses are cached for the lifetime of the
// client, failures are never cached so callers may retry.
type Client struct {
	instance Instance
	endpoint string

	httpClient httpClient
	logger     log.Logger
	metrics    *Metrics

	mu           sync.RWMutex
	datasetCache map[string]DatasetRecord
	fileCache    map[string][]FileRecord
}

// NewClient returns a client for the given instance. A nil metrics or
// logger falls back to package defaults.
func NewClient(cfg Config, instance Instance, logger log.Logger, m *Metrics) (*Client, error) {
	if !instance.Valid() {
		return nil, fmt.Errorf("unrecognized catalog instance %q", instance)
	}
	endpoint, ok := cfg.endpoint(instance)
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for catalog instance %q", instance)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint for catalog instance %q", instance)
	}
	if logger == nil {
		logger = util_log.Logger
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		instance:     instance,
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       log.With(logger, "component", "catalog", "instance", instance),
		metrics:      m,
		datasetCache: make(map[string]DatasetRecord),
		fileCache:    make(map[string][]FileRecord),
	}, nil
}

// DatasetRecord returns the catalog's registration entry for the named
// dataset, fetching it on first use and serving the cache afterwards.
func (c *Client) DatasetRecord(ctx context.Context, name string) (DatasetRecord, error) {
	c.mu.RLock()
	record, ok := c.datasetCache[name]
	c.mu.RUnlock()
	if ok {
		return record, nil
	}

	var records []DatasetRecord
	if err := c.get(ctx, datasetsPath, name, &records); err != nil {
		return DatasetRecord{}, err
	}
	if len(records) == 0 {
		return DatasetRecord{}, NotFoundError{Dataset: name, Instance: c.instance}
	}
	record = records[0]

	c.mu.Lock()
	c.datasetCache[name] = record
	c.mu.Unlock()
	return record, nil
}

// FileRecords returns the file records of the named dataset sorted by
// logical name, fetching them on first use and serving the cache afterwards.
func (c *Client) FileRecords(ctx context.Context, name string) ([]FileRecord, error) {
	c.mu.RLock()
	records, ok := c.fileCache[name]
	c.mu.RUnlock()
	if ok {
		return records, nil
	}

	if err := c.get(ctx, filesPath, name, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, NotFoundError{Dataset: name, Instance: c.instance}
	}
	// Canonical deterministic order regardless of what the server returned.
	sort.Slice(records, func(i, j int) bool {
		return records[i].LogicalName < records[j].LogicalName
	})

	c.mu.Lock()
	c.fileCache[name] = records
	c.mu.Unlock()
	level.Debug(c.logger).Log("msg", "fetched file records", "dataset", name, "files", len(records))
	return records, nil
}

func (c *Client) get(ctx context.Context, path, dataset string, out interface{}) error {
	start := time.Now()
	status, err := c.doGet(ctx, path, dataset, out)
	if c.metrics != nil {
		c.metrics.requestDuration.WithLabelValues(string(c.instance), path, status).Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *Client) doGet(ctx context.Context, path, dataset string, out interface{}) (string, error) {
	u := c.endpoint + path + "?dataset=" + url.QueryEscape(dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "error", errors.Wrap(err, "building catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		level.Error(c.logger).Log("msg", "catalog request failed", "path", path, "dataset", dataset, "err", err)
		return "error", errors.Wrap(err, "querying catalog")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	status := fmt.Sprintf("%d", resp.StatusCode)
	if resp.StatusCode/100 != 2 {
		err := fmt.Errorf("catalog returned status code %d", resp.StatusCode)
		level.Error(c.logger).Log("msg", "catalog request failed", "path", path, "dataset", dataset, "err", err)
		return status, err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return status, errors.Wrap(err, "decoding catalog response")
	}
	return status, nil
}
