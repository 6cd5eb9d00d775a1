package source

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/logger"
)

// PageFunc returns one page of raw objects starting at offset
type PageFunc func(ctx context.Context, offset, limit int) ([]map[string]any, error)

// Pages is the accumulated result of Paginate
type Pages struct {
	Raw       []map[string]any
	Calls     int
	Truncated bool
}

// Paginate walks offset/limit pages until a short page or until the
// accumulated count reaches ceiling. On error the pages gathered so far are
// returned with the error. Pages are concatenated in fetch order without dedup
func Paginate(ctx context.Context, limit, ceiling int, fn PageFunc) (Pages, error) {
	var out Pages
	if limit <= 0 {
		return out, perr.Configf("page limit must be positive, got %d", limit)
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxRecords
	}
	for offset := 0; ; offset += limit {
		if err := ctx.Err(); err != nil {
			return out, perr.Wrap(err, perr.ErrorCodeUnavailable, "pagination interrupted")
		}
		page, err := fn(ctx, offset, limit)
		out.Calls++
		if err != nil {
			return out, err
		}
		out.Raw = append(out.Raw, page...)
		if len(page) < limit {
			return out, nil
		}
		if len(out.Raw) >= ceiling {
			out.Truncated = true
			return out, nil
		}
	}
}

// Endpoint names one paginated upstream resource
type Endpoint struct {
	Name   string
	Path   string
	Params url.Values
	Limit  int
	// Until is the end of the covered window. Fetches made before it are
	// not cached since the upstream is still gaining records
	Until time.Time
}

func (e Endpoint) query(offset, limit int) url.Values {
	q := url.Values{}
	for k, vs := range e.Params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// EndpointURL renders the endpoint url without paging params, as reported in status maps
func (c *Client) EndpointURL(e Endpoint) string {
	u := c.URL(e.Path)
	if len(e.Params) > 0 {
		u += "?" + e.Params.Encode()
	}
	return u
}

// Collect fetches every page of e, consulting and filling the configured
// cache. Upstream failures are recorded in the returned Status, never returned
func (c *Client) Collect(ctx context.Context, e Endpoint) ([]map[string]any, Status) {
	st := Status{EndpointURL: c.EndpointURL(e)}
	log := c.scoped(ctx, e.Name)

	if c.cfg.Cache != nil {
		raw, ok := c.cfg.Cache.Get(c.service, e.Name, e.Params)
		c.cfg.Observer.Cache(c.service, ok)
		if ok {
			st.Cached = true
			st.NumberOfRecords = len(raw)
			st.NoRecords = len(raw) == 0
			log.Debug().Int("records", len(raw)).Msg("served from cache")
			return raw, st
		}
	}

	c.Probe(ctx, e)

	pages, err := Paginate(ctx, e.Limit, c.cfg.MaxRecords, func(ctx context.Context, offset, limit int) ([]map[string]any, error) {
		body, err := c.Get(ctx, e.Name, e.Path, e.query(offset, limit))
		if err != nil {
			return nil, err
		}
		objs, err := record.DecodeObjects(body)
		if err != nil {
			return nil, err
		}
		c.cfg.Observer.Page(c.service, e.Name, len(objs))
		log.Debug().Int("offset", offset).Int("records", len(objs)).Msg("page")
		return objs, nil
	})

	st.NumberOfRecords = len(pages.Raw)
	st.Pages = pages.Calls
	st.Truncated = pages.Truncated

	if err != nil {
		st.Fail(err)
		c.cfg.Observer.Failure(c.service, perr.CodeOf(err).String())
		log.Warn().Err(err).Int("partial_records", len(pages.Raw)).Msg("fetch failed, keeping partial result")
		return pages.Raw, st
	}
	if pages.Truncated {
		log.Warn().Int("records", len(pages.Raw)).Int("ceiling", c.cfg.MaxRecords).Msg("record ceiling reached")
	}
	if len(pages.Raw) == 0 {
		st.NoRecords = true
		log.Info().Str("url", st.EndpointURL).Msg("no records")
	}
	if c.cfg.Cache != nil && !pages.Truncated && c.Settled(e.Until) {
		if cerr := c.cfg.Cache.Put(c.service, e.Name, e.Params, pages.Raw); cerr != nil {
			log.Warn().Err(cerr).Msg("cache write failed")
		}
	}
	return pages.Raw, st
}

// Settled reports whether until has passed, so a complete fetch ending there
// may be cached. A zero until is always settled
func (c *Client) Settled(until time.Time) bool {
	return until.IsZero() || !c.now().Before(until)
}

// Probe issues one limit=1 request against e and discards the result. The
// first query on a stale pooled upstream connection can come back empty, so
// each client probes once before its first real fetch. Failures are only logged
func (c *Client) Probe(ctx context.Context, e Endpoint) {
	c.Reconnect(ctx, e.Name, func(ctx context.Context) error {
		_, err := c.Get(ctx, e.Name+"_probe", e.Path, e.query(0, 1))
		return err
	})
}

// Reconnect runs fn at most once per client, before its first real request,
// unless SkipProbe is set. fn should be a cheap request whose result is
// thrown away; its error is only logged
func (c *Client) Reconnect(ctx context.Context, endpoint string, fn func(context.Context) error) {
	if c.cfg.SkipProbe || !c.probed.CompareAndSwap(false, true) {
		return
	}
	if err := fn(ctx); err != nil {
		c.scoped(ctx, endpoint).Debug().Err(err).Msg("reconnect query failed")
	}
}

func (c *Client) scoped(ctx context.Context, endpoint string) *logger.Logger {
	ll := logger.C(ctx).With().Str("component", c.service).Str("endpoint", endpoint).Logger()
	return &ll
}
