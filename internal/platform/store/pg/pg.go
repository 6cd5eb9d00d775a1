// Package pg provides a read-only Postgres client on pgxpool with optional
// query tracing, used for direct Consolidated Database access
package pg

import (
	"context"
	"time"

	perr "logrep/internal/platform/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures pgxpool for pg
type Config struct {
	URL      string
	MaxConns int32
	SlowMs   int
	AppName  string
}

// PG is a postgres client with pool and optional tracer
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	SlowMs int
}

// Result is a column-ordered query result
type Result struct {
	Columns []string
	Rows    [][]any
}

var newPool = pgxpool.NewWithConfig

// Open creates a new PG client with the given config, optional tracer, and optional pool config mutator
func Open(ctx context.Context, cfg Config, tracer QueryTracer, poolCfgMut func(*pgxpool.Config)) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfig, "parse postgres dsn")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.AppName != "" {
		if pcfg.ConnConfig.RuntimeParams == nil {
			pcfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	if poolCfgMut != nil {
		poolCfgMut(pcfg)
	}
	pool, err := newPool(ctx, pcfg) // use seam
	if err != nil {
		return nil, perr.FromPostgres(err, "open postgres pool")
	}
	return &PG{
		Pool:   pool,
		Tracer: tracer,
		SlowMs: cfg.SlowMs,
	}, nil
}

// Close closes the pool
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Query runs sql and collects every row as column-ordered values.
// Postgres errors are mapped through perr.FromPostgres
func (p *PG) Query(ctx context.Context, sql string, args ...any) (Result, error) {
	start := time.Now()
	res, err := p.query(ctx, sql, args...)
	p.trace(ctx, QueryEvent{SQL: sql, Args: args, Elapsed: time.Since(start), Rows: len(res.Rows), Err: err})
	if err != nil {
		return Result{}, perr.FromPostgres(err, "postgres query")
	}
	return res, nil
}

func (p *PG) query(ctx context.Context, sql string, args ...any) (Result, error) {
	rows, err := p.Pool.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	res := Result{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		res.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return Result{}, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

func (p *PG) trace(ctx context.Context, ev QueryEvent) {
	if p.Tracer == nil {
		return
	}
	ev.Slow = p.SlowMs > 0 && ev.Elapsed >= time.Duration(p.SlowMs)*time.Millisecond
	p.Tracer.OnQuery(ctx, ev)
}
