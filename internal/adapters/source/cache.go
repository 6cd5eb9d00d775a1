package source

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	perr "logrep/internal/platform/errors"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Cache stores the raw objects of complete endpoint fetches
type Cache interface {
	Get(service, endpoint string, params url.Values) ([]map[string]any, bool)
	Put(service, endpoint string, params url.Values, raw []map[string]any) error
}

// DiskCache keeps one gzip NDJSON file per (service, endpoint, params) plus a
// .meta sidecar. Optional retention by max age and total bytes
type DiskCache struct {
	dir             string
	maxAge          time.Duration
	retainMaxAge    time.Duration
	retainMaxBytes  int64
	lastCleanupUnix atomic.Int64
	now             func() time.Time
}

// cacheMeta is a tiny sidecar json with fields we actually use
type cacheMeta struct {
	Service   string    `json:"service"`
	Endpoint  string    `json:"endpoint"`
	Records   int       `json:"records"`
	Size      int64     `json:"size,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CacheOption configures the disk cache
type CacheOption func(*DiskCache)

// WithMaxAge treats entries older than d as misses; zero keeps entries forever
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *DiskCache) { c.maxAge = d }
}

// WithRetention sets optional age and size retention
// Pass zero to disable either dimension
func WithRetention(maxAge time.Duration, maxBytes int64) CacheOption {
	return func(c *DiskCache) {
		c.retainMaxAge = maxAge
		c.retainMaxBytes = maxBytes
	}
}

// NewDiskCache builds a cache rooted at dir, creating it when missing
func NewDiskCache(dir string, opts ...CacheOption) (*DiskCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, perr.Configf("cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfig, "create cache dir %s", dir)
	}
	c := &DiskCache{dir: dir, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Key is the hex sha256 of service, endpoint and the encoded params without
// offset and limit
func Key(service, endpoint string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		if k == "offset" || k == "limit" {
			continue
		}
		q[k] = vs
	}
	sum := sha256.Sum256([]byte(service + "|" + endpoint + "|" + q.Encode()))
	return hex.EncodeToString(sum[:])
}

func (c *DiskCache) path(key string) string { return filepath.Join(c.dir, key+".ndjson.gz") }

// Get returns the cached objects for the key when present and fresh
func (c *DiskCache) Get(service, endpoint string, params url.Values) ([]map[string]any, bool) {
	path := c.path(Key(service, endpoint, params))
	meta, err := loadMeta(path + ".meta")
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(meta.FetchedAt) > c.maxAge {
		return nil, false
	}
	raw, err := readNDJSON(path)
	if err != nil || len(raw) != meta.Records {
		return nil, false
	}
	c.maybeCleanup()
	return raw, true
}

// Put stores raw atomically and then writes the sidecar
func (c *DiskCache) Put(service, endpoint string, params url.Values, raw []map[string]any) error {
	path := c.path(Key(service, endpoint, params))
	n, err := writeNDJSON(path, raw)
	if err != nil {
		return err
	}
	meta := &cacheMeta{
		Service:   service,
		Endpoint:  endpoint,
		Records:   len(raw),
		Size:      n,
		FetchedAt: c.now().UTC(),
	}
	if err := saveMeta(path+".meta", meta); err != nil {
		return err
	}
	c.maybeCleanup()
	return nil
}

func writeNDJSON(path string, raw []map[string]any) (int64, error) {
	tmp := path + ".part"
	defer func() { _ = os.Remove(tmp) }()

	out, err := os.Create(tmp)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeUnknown, "create %s", tmp)
	}
	zw := gzip.NewWriter(out)
	bw := bufio.NewWriter(zw)
	enc := json.NewEncoder(bw)
	for _, obj := range raw {
		if err := enc.Encode(obj); err != nil {
			_ = out.Close()
			return 0, perr.Wrap(err, perr.ErrorCodeJSON, "encode cache line")
		}
	}
	werr := bw.Flush()
	zerr := zw.Close()
	cerr := out.Close()
	for _, e := range []error{werr, zerr, cerr} {
		if e != nil {
			return 0, perr.Wrapf(e, perr.ErrorCodeUnknown, "write %s", tmp)
		}
	}
	fi, err := os.Stat(tmp)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func readNDJSON(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	dec := json.NewDecoder(bufio.NewReader(zr))
	dec.UseNumber()
	out := []map[string]any{}
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, perr.Wrap(err, perr.ErrorCodeJSON, "decode cache line")
		}
		out = append(out, obj)
	}
}

// loadMeta reads a sidecar json file
func loadMeta(path string) (*cacheMeta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m cacheMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// saveMeta writes the sidecar json atomically
func saveMeta(path string, m *cacheMeta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, path)
}

// maybeCleanup throttles retention cleanup to once per ten minutes
func (c *DiskCache) maybeCleanup() {
	now := c.now().Unix()
	last := c.lastCleanupUnix.Load()
	if last != 0 && now-last < 600 {
		return
	}
	if c.retainMaxAge <= 0 && c.retainMaxBytes <= 0 {
		return
	}
	if !c.lastCleanupUnix.CompareAndSwap(last, now) {
		return
	}
	_ = c.cleanupOnce()
}

// cleanupOnce applies age and size retention, oldest fetches go first
func (c *DiskCache) cleanupOnce() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	type item struct {
		Path      string
		Size      int64
		FetchedAt time.Time
	}
	var items []item
	var total int64
	cutoff := c.now().Add(-c.retainMaxAge)

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".ndjson.gz") {
			continue
		}
		full := filepath.Join(c.dir, name)
		fi, err := os.Stat(full)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		fetched := fi.ModTime()
		if m, err := loadMeta(full + ".meta"); err == nil {
			fetched = m.FetchedAt
		}
		if c.retainMaxAge > 0 && fetched.Before(cutoff) {
			_ = os.Remove(full)
			_ = os.Remove(full + ".meta")
			continue
		}
		items = append(items, item{Path: full, Size: fi.Size(), FetchedAt: fetched})
		total += fi.Size()
	}

	if c.retainMaxBytes > 0 && total > c.retainMaxBytes {
		sort.Slice(items, func(i, j int) bool { return items[i].FetchedAt.Before(items[j].FetchedAt) })
		for _, it := range items {
			if total <= c.retainMaxBytes {
				break
			}
			_ = os.Remove(it.Path)
			_ = os.Remove(it.Path + ".meta")
			total -= it.Size
		}
	}
	return nil
}
