package modkit

import (
	"logrep/internal/adapters/source"
	"logrep/internal/platform/config"
	"logrep/internal/platform/logger"
	"logrep/internal/platform/metrics"
	"logrep/internal/platform/store/pg"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log     logger.Logger
	Cfg     config.Conf
	PG      *pg.PG
	Metrics *metrics.Metrics
	Cache   source.Cache
}

// Observer returns the metrics sink as a source.Observer, nil when metrics are off
func (d Deps) Observer() source.Observer {
	if d.Metrics == nil {
		return nil
	}
	return d.Metrics
}
