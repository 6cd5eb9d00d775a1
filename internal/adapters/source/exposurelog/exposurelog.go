// Package exposurelog fetches instruments, exposures and exposure messages
// from the Exposure Log service and joins message flags onto exposures
package exposurelog

import (
	"context"
	"net/url"
	"sort"
	"strconv"

	"logrep/internal/adapters/source"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	"logrep/internal/platform/validate"
)

const (
	// Service is the upstream path prefix and the status/metrics label
	Service = "exposurelog"

	// DefaultLimit is the page size for exposures and messages
	DefaultLimit = 2500

	// FieldFlag and FieldMessage are added to every exposure by the join
	FieldFlag    = "exposure_flag"
	FieldMessage = "message_text"

	// FlagUnknown marks an exposure with no matching message
	FlagUnknown = "unknown"
	// FlagGood is what the upstream value "none" is reported as
	FlagGood = "good"
)

// Options are the service specific fetch filters
type Options struct {
	Limit       int      `json:"limit" validate:"min=0,max=10000"`
	Instruments []string `json:"instruments" validate:"dive,required"`
	Registry    int      `json:"registry" validate:"min=0,max=9"`
}

// Adapter holds one Exposure Log fetch
type Adapter struct {
	c    *source.Client
	opts Options

	instruments []string
	exposures   map[string][]record.Record
	messages    []record.Record
	status      source.StatusMap
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
	if opts.Registry == 0 {
		opts.Registry = 1
	}
	return &Adapter{
		c:         source.NewClient(Service, cfg),
		opts:      opts,
		exposures: map[string][]record.Record{},
		status:    source.StatusMap{},
	}, nil
}

// Fetch loads instruments, then exposures per instrument, then messages, and
// joins flags. Only an invalid window is returned as an error
func (a *Adapter) Fetch(ctx context.Context, w dayobs.Window) error {
	if err := w.Validate(); err != nil {
		return err
	}
	ctx, cancel := source.WithBudget(ctx, a.c.Config().Budget)
	defer cancel()

	// the instruments GET is the first request of a fetch
	a.c.Probe(ctx, source.Endpoint{Name: "instruments", Path: instrumentsPath})
	a.instruments = a.fetchInstruments(ctx)
	a.exposures = make(map[string][]record.Record, len(a.instruments))
	for _, inst := range a.instruments {
		a.exposures[inst] = a.fetchExposures(ctx, w, inst)
	}
	a.messages = a.fetchMessages(ctx, w)
	a.join()
	return nil
}

const instrumentsPath = "/" + Service + "/instruments"

func (a *Adapter) fetchInstruments(ctx context.Context) []string {
	st := source.Status{EndpointURL: a.c.URL(instrumentsPath)}
	defer func() { a.status["instruments"] = st }()

	body, err := a.c.Get(ctx, "instruments", instrumentsPath, nil)
	if err != nil {
		st.Fail(err)
		a.c.Logger().Warn().Err(err).Msg("instruments unavailable")
		return a.opts.Instruments
	}
	var groups map[string][]string
	if err := record.DecodeValue(body, &groups); err != nil {
		st.Fail(err)
		return a.opts.Instruments
	}
	// flatten in key order so the result is stable
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	seen := map[string]bool{}
	for _, k := range keys {
		for _, inst := range groups[k] {
			if inst == "" || seen[inst] {
				continue
			}
			seen[inst] = true
			out = append(out, inst)
		}
	}
	st.NumberOfRecords = len(out)
	st.NoRecords = len(out) == 0
	if len(a.opts.Instruments) > 0 {
		out = intersect(out, a.opts.Instruments)
	}
	return out
}

func intersect(have, want []string) []string {
	ok := map[string]bool{}
	for _, h := range have {
		ok[h] = true
	}
	var out []string
	for _, w := range want {
		if ok[w] {
			out = append(out, w)
		}
	}
	return out
}

func windowParams(w dayobs.Window) url.Values {
	return url.Values{
		"min_day_obs": {w.Min.Compact()},
		"max_day_obs": {w.Max.Compact()},
	}
}

func (a *Adapter) fetchExposures(ctx context.Context, w dayobs.Window, inst string) []record.Record {
	q := windowParams(w)
	q.Set("instrument", inst)
	q.Set("registry", strconv.Itoa(a.opts.Registry))
	ep := source.Endpoint{Name: "exposures." + inst, Path: "/" + Service + "/exposures", Params: q, Limit: a.opts.Limit, Until: w.End()}

	raw, st := a.c.Collect(ctx, ep)
	a.status[ep.Name] = st
	recs := exposureSchema.ProjectAll(raw)
	record.SortBy(recs, "timespan_begin")
	return recs
}

func (a *Adapter) fetchMessages(ctx context.Context, w dayobs.Window) []record.Record {
	q := windowParams(w)
	q.Set("is_human", "either")
	q.Set("is_valid", "true")
	q.Set("order_by", "-date_added")
	for _, inst := range a.opts.Instruments {
		q.Add("instruments", inst)
	}
	ep := source.Endpoint{Name: "messages", Path: "/" + Service + "/messages", Params: q, Limit: a.opts.Limit, Until: w.End()}

	raw, st := a.c.Collect(ctx, ep)
	a.status[ep.Name] = st
	recs := messageSchema.ProjectAll(raw)
	for _, r := range recs {
		if f, ok := r[FieldFlag].(string); ok {
			r[FieldFlag] = normalizeFlag(f)
		}
	}
	record.SortBy(recs, "day_obs", "date_added")
	return recs
}

func normalizeFlag(f string) string {
	switch f {
	case "none":
		return FlagGood
	case "":
		return FlagUnknown
	}
	return f
}

// join copies exposure_flag and message_text from the latest message with the
// same obs_id onto every exposure
func (a *Adapter) join() {
	lut := make(map[string]record.Record, len(a.messages))
	// messages are ascending by date_added within a day so later entries win
	for _, m := range a.messages {
		if id := m.String("obs_id"); id != "" {
			lut[id] = m
		}
	}
	for _, recs := range a.exposures {
		for _, e := range recs {
			e[FieldFlag] = FlagUnknown
			e[FieldMessage] = ""
			m, ok := lut[e.String("obs_id")]
			if !ok {
				continue
			}
			if f, ok := m[FieldFlag].(string); ok {
				e[FieldFlag] = f
			}
			e[FieldMessage] = m.String(FieldMessage)
		}
	}
}

// Name returns the service label
func (a *Adapter) Name() string { return Service }

// Status returns the per-endpoint status map of the last Fetch
func (a *Adapter) Status() source.StatusMap { return a.status.Clone() }

// Instruments returns the instruments exposures were fetched for
func (a *Adapter) Instruments() []string { return append([]string(nil), a.instruments...) }

// Exposures returns instrument to exposures sorted by timespan_begin
func (a *Adapter) Exposures() map[string][]record.Record { return a.exposures }

// Records returns the messages sorted by day_obs then date_added
func (a *Adapter) Records() []record.Record { return a.messages }

// AllExposures returns every instrument's exposures, instruments in fetch order
func (a *Adapter) AllExposures() []record.Record {
	var out []record.Record
	for _, inst := range a.instruments {
		out = append(out, a.exposures[inst]...)
	}
	return out
}

// Flagged returns exposures marked questionable or junk
func (a *Adapter) Flagged() []record.Record {
	var out []record.Record
	for _, e := range a.AllExposures() {
		switch e.String(FieldFlag) {
		case "questionable", "junk":
			out = append(out, e)
		}
	}
	return out
}

// FlagCounts returns instrument to flag to number of exposures
func (a *Adapter) FlagCounts() map[string]map[string]int {
	out := make(map[string]map[string]int, len(a.exposures))
	for inst, recs := range a.exposures {
		m := map[string]int{}
		for _, e := range recs {
			m[e.String(FieldFlag)]++
		}
		out[inst] = m
	}
	return out
}
