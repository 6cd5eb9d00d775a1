// Package nightreport fetches the observers' night reports for a window
package nightreport

import (
	"context"
	"net/url"
	"sort"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	"logrep/internal/platform/validate"
)

const (
	// Service is the upstream path prefix and the status/metrics label
	Service = "nightreport"

	// DefaultLimit is the reports page size
	DefaultLimit = 100
)

var reportSchema = record.NewSchema(
	record.Field{Name: "id", Kind: record.KindString},
	record.Field{Name: "parent_id", Kind: record.KindString},
	record.Field{Name: "day_obs", Kind: record.KindInt},
	record.Field{Name: "telescope", Kind: record.KindString},
	record.Field{Name: "summary", Kind: record.KindString},
	record.Field{Name: "telescope_status", Kind: record.KindString},
	record.Field{Name: "confluence_url", Kind: record.KindString},
	record.Field{Name: "observers_crew", Kind: record.KindList},
	record.Field{Name: "user_id", Kind: record.KindString},
	record.Field{Name: "user_agent", Kind: record.KindString},
	record.Field{Name: "is_valid", Kind: record.KindBool},
	record.Field{Name: "site_id", Kind: record.KindString},
	record.Field{Name: "date_added", Kind: record.KindTime},
	record.Field{Name: "date_sent", Kind: record.KindTime},
	record.Field{Name: "date_invalidated", Kind: record.KindTime},
)

// Options are the service specific fetch filters
type Options struct {
	Limit     int    `json:"limit" validate:"min=0,max=10000"`
	Telescope string `json:"telescope"`
}

// Adapter holds one Night Report fetch
type Adapter struct {
	c      *source.Client
	opts   Options
	recs   []record.Record
	status source.StatusMap
}

// New validates cfg and opts; it performs no I/O
func New(cfg source.Config, opts Options) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(opts); err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	return &Adapter{c: source.NewClient(Service, cfg), opts: opts, status: source.StatusMap{}}, nil
}

// Name returns the service label
func (a *Adapter) Name() string { return Service }

// Fetch loads reports with min_day_obs <= day_obs < max_day_obs
func (a *Adapter) Fetch(ctx context.Context, w dayobs.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	ctx, cancel := source.WithBudget(ctx, a.c.Config().Budget)
	defer cancel()

	q := url.Values{
		"is_human":    {"either"},
		"is_valid":    {"true"},
		"min_day_obs": {w.Min.Compact()},
		"max_day_obs": {w.Max.Compact()},
	}
	if a.opts.Telescope != "" {
		q.Set("telescopes", a.opts.Telescope)
	}
	ep := source.Endpoint{Name: "reports", Path: "/" + Service + "/reports", Params: q, Limit: a.opts.Limit, Until: w.End()}

	raw, st := a.c.Collect(ctx, ep)
	a.status[ep.Name] = st
	a.recs = reportSchema.ProjectAll(raw)
	record.SortBy(a.recs, "day_obs", "date_added")
	return nil
}

// Status returns the per-endpoint status map of the last Fetch
func (a *Adapter) Status() source.StatusMap { return a.status.Clone() }

// Records returns reports sorted by day_obs then date_added
func (a *Adapter) Records() []record.Record { return a.recs }

// NightlyTickets returns dayobs to the sorted unique confluence URLs of its reports
func (a *Adapter) NightlyTickets() map[dayobs.Day][]string {
	sets := map[dayobs.Day]map[string]bool{}
	for _, r := range a.recs {
		u := r.String("confluence_url")
		d, ok := r.Int("day_obs")
		if u == "" || !ok {
			continue
		}
		day := dayobs.Day(d)
		if sets[day] == nil {
			sets[day] = map[string]bool{}
		}
		sets[day][u] = true
	}
	out := make(map[dayobs.Day][]string, len(sets))
	for d, set := range sets {
		urls := make([]string, 0, len(set))
		for u := range set {
			urls = append(urls, u)
		}
		sort.Strings(urls)
		out[d] = urls
	}
	return out
}
