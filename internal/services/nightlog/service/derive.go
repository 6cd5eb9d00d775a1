package service

import (
	"context"
	"strings"

	"logrep/internal/adapters/almanac"
	"logrep/internal/core/dayobs"
	"logrep/internal/core/record"
	"logrep/internal/core/tally"
	"logrep/internal/core/timelog"
	"logrep/internal/platform/logger"
	nldom "logrep/internal/services/nightlog/domain"
)

// derive fills the cross-source parts of sum from whatever the adapters got
func (s *Service) derive(ctx context.Context, w dayobs.Window, ads nldom.Adapters, sum *nldom.Summary) {
	l := logger.C(ctx)

	if a := ads.NightReport; a != nil {
		sum.Counts[a.Name()] = len(a.Records())
		sum.Tickets = a.NightlyTickets()
	}
	if a := ads.ExposureLog; a != nil {
		sum.Counts[a.Name()] = len(a.AllExposures())
		sum.Counts[a.Name()+".messages"] = len(a.Records())
		sum.Instruments = a.Instruments()
		sum.Flags = a.FlagCounts()
	}
	if a := ads.NarrativeLog; a != nil {
		sum.Counts[a.Name()] = len(a.Records())
		sum.TimeLost = a.TimeLost()
	}
	if a := ads.ConsDB; a != nil {
		sum.Counts[a.Name()] = len(a.Records())
	}
	if a := ads.EFD; a != nil {
		sum.Counts[a.Name()+".targets"] = len(a.Records())
		for _, name := range a.SeriesNames() {
			sum.Counts[a.Name()+"."+name] = len(a.Series(name))
		}
		sum.Slews.Seconds, sum.Slews.Count = a.SlewSeconds()
	}

	sol := almanac.NewSolar(s.Cfg.Site)
	sum.Nights = sol.Nights(w)
	sum.NightHours = sol.Window(w)

	exps, skipped := s.exposures(ads)
	sum.Skipped = skipped
	sum.Gaps = tally.ObservationGaps(exps)
	sum.GapMinutes = tally.Rollup(sum.Gaps)
	sum.Accounting = tally.Tally(tally.Request{
		Exposures:   exps,
		NightHours:  sum.NightHours,
		SlewSeconds: sum.Slews.Seconds,
		NumSlews:    sum.Slews.Count,
		TimeLost:    sum.TimeLost,
	})
	sum.Tally = tally.Render(sum.Accounting)
	if skipped > 0 {
		l.Warn().Int("skipped", skipped).Msg("nightlog: exposures without begin or end")
	}

	tl, err := s.timeLog(w, ads)
	if err != nil {
		l.Error().Err(err).Msg("nightlog: time log failed")
		return
	}
	sum.TimeLog = tl
}

// exposures prefers the Exposure Log per instrument and fills instruments it
// does not carry from ConsDB
func (s *Service) exposures(ads nldom.Adapters) (map[string][]tally.Exposure, int) {
	out := map[string][]tally.Exposure{}
	skipped := 0
	if a := ads.ExposureLog; a != nil {
		el, n := tally.ByInstrument(a.Exposures(), tally.ExposureLogFields, s.Cfg.Loc)
		skipped += n
		for inst, e := range el {
			if len(e) > 0 {
				out[inst] = e
			}
		}
	}
	if a := ads.ConsDB; a != nil {
		cdb, n := tally.ByInstrument(a.Exposures(), tally.ConsDBFields, s.Cfg.Loc)
		skipped += n
		for inst, e := range cdb {
			if len(e) == 0 || hasFold(out, inst) {
				continue
			}
			out[inst] = e
		}
	}
	return out, skipped
}

func hasFold(m map[string][]tally.Exposure, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// timeLog merges the sources in fixed order, then compacts, reduces and
// partitions when compaction is enabled
func (s *Service) timeLog(w dayobs.Window, ads nldom.Adapters) (nldom.TimeLog, error) {
	var srcs []timelog.Source
	add := func(tag, field string, recs []record.Record) {
		srcs = append(srcs, timelog.Source{Tag: tag, TimeField: field, Records: recs})
	}
	if a := ads.NightReport; a != nil {
		add(timelog.TagNightReport, "date_added", a.Records())
	}
	if a := ads.ExposureLog; a != nil {
		add(timelog.TagExposureLog, "timespan_begin", a.AllExposures())
	}
	if a := ads.NarrativeLog; a != nil {
		add(timelog.TagNarrative, "date_begin", a.Records())
	}
	if a := ads.ConsDB; a != nil {
		add(timelog.TagConsDB, "obs_start", a.Records())
	}

	merged, stats, err := timelog.Merge(w, srcs...)
	if err != nil {
		return nldom.TimeLog{}, err
	}
	out := nldom.TimeLog{Merge: stats, Rows: merged.Len(), Frame: merged}
	if s.Cfg.Compact {
		c, rep, err := timelog.Compact(merged, s.Cfg.Timelog)
		if err != nil {
			return out, err
		}
		out.Compaction = &rep
		if out.Frame, err = timelog.Reduce(c, s.Cfg.Reduce); err != nil {
			return out, err
		}
	}
	out.Dense, out.Sparse = timelog.Partition(out.Frame, s.Cfg.Partition)
	return out, nil
}
