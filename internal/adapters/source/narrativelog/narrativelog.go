// Package narrativelog fetches narrative log messages added during a window
// and rolls up reported time lost
package narrativelog

import (
	"context"
	"net/url"
	"time"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	"logrep/internal/platform/validate"
)

const (
	// Service is the upstream path prefix and the status/metrics label
	Service = "narrativelog"

	// DefaultLimit is the messages page size
	DefaultLimit = 1000
)

var messageSchema = record.NewSchema(
	record.Field{Name: "id", Kind: record.KindString},
	record.Field{Name: "message_text", Kind: record.KindString},
	record.Field{Name: "level", Kind: record.KindInt},
	record.Field{Name: "category", Kind: record.KindString},
	record.Field{Name: "components", Kind: record.KindList},
	record.Field{Name: "cscs", Kind: record.KindList},
	record.Field{Name: "subsystems", Kind: record.KindList},
	record.Field{Name: "systems", Kind: record.KindList},
	record.Field{Name: "primary_software_components", Kind: record.KindList},
	record.Field{Name: "primary_hardware_components", Kind: record.KindList},
	record.Field{Name: "tags", Kind: record.KindList},
	record.Field{Name: "urls", Kind: record.KindList},
	record.Field{Name: "time_lost", Kind: record.KindFloat},
	record.Field{Name: "time_lost_type", Kind: record.KindString},
	record.Field{Name: "user_id", Kind: record.KindString},
	record.Field{Name: "user_agent", Kind: record.KindString},
	record.Field{Name: "is_human", Kind: record.KindBool},
	record.Field{Name: "is_valid", Kind: record.KindBool},
	record.Field{Name: "site_id", Kind: record.KindString},
	record.Field{Name: "date_added", Kind: record.KindTime},
	record.Field{Name: "date_begin", Kind: record.KindTime},
	record.Field{Name: "date_end", Kind: record.KindTime},
	record.Field{Name: "date_invalidated", Kind: record.KindTime},
)

// Options are the service specific fetch filters
type Options struct {
	Limit   int      `json:"limit" validate:"min=0,max=10000"`
	SiteIDs []string `json:"site_ids"`
}

// Adapter holds one Narrative Log fetch
type Adapter struct {
	c      *source.Client
	opts   Options
	loc    *time.Location
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
	return &Adapter{c: source.NewClient(Service, cfg), opts: opts, loc: time.UTC, status: source.StatusMap{}}, nil
}

// Name returns the service label
func (a *Adapter) Name() string { return Service }

// Fetch loads messages whose date_added falls in the window instants
func (a *Adapter) Fetch(ctx context.Context, w dayobs.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	ctx, cancel := source.WithBudget(ctx, a.c.Config().Budget)
	defer cancel()
	if w.Loc != nil {
		a.loc = w.Loc
	}

	q := url.Values{
		"is_human":       {"either"},
		"is_valid":       {"true"},
		"order_by":       {"-date_begin"},
		"min_date_added": {w.Start().Format("2006-01-02T15:04:05")},
		"max_date_added": {w.End().Format("2006-01-02T15:04:05")},
	}
	for _, s := range a.opts.SiteIDs {
		q.Add("site_ids", s)
	}
	ep := source.Endpoint{Name: "messages", Path: "/" + Service + "/messages", Params: q, Limit: a.opts.Limit, Until: w.End()}

	raw, st := a.c.Collect(ctx, ep)
	a.status[ep.Name] = st
	a.recs = messageSchema.ProjectAll(raw)
	record.SortBy(a.recs, "date_begin")
	return nil
}

// Status returns the per-endpoint status map of the last Fetch
func (a *Adapter) Status() source.StatusMap { return a.status.Clone() }

// Records returns the messages sorted by date_begin
func (a *Adapter) Records() []record.Record { return a.recs }

// TimeLost returns dayobs to time_lost_type to hours lost. Messages without a
// date_begin or with no time lost are skipped; an empty type is "unspecified"
func (a *Adapter) TimeLost() map[dayobs.Day]map[string]float64 {
	return RollupTimeLost(a.recs, a.loc)
}

// RollupTimeLost is TimeLost over arbitrary narrative records
func RollupTimeLost(recs []record.Record, loc *time.Location) map[dayobs.Day]map[string]float64 {
	out := map[dayobs.Day]map[string]float64{}
	for _, r := range recs {
		lost, ok := r.Float("time_lost")
		if !ok || lost == 0 {
			continue
		}
		begin, ok := r.Time("date_begin")
		if !ok {
			continue
		}
		day := dayobs.FromTime(begin.In(loc))
		typ := r.String("time_lost_type")
		if typ == "" {
			typ = "unspecified"
		}
		if out[day] == nil {
			out[day] = map[string]float64{}
		}
		out[day][typ] += lost
	}
	return out
}

// TotalTimeLost sums TimeLost over every day and type
func (a *Adapter) TotalTimeLost() float64 {
	var sum float64
	for _, types := range a.TimeLost() {
		for _, h := range types {
			sum += h
		}
	}
	return sum
}
