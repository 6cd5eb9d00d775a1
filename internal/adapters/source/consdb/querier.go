package consdb

import (
	"context"
	"strings"

	"logrep/internal/adapters/source"
	"logrep/internal/core/record"
	perr "logrep/internal/platform/errors"
	"logrep/internal/platform/store/pg"
)

// Table is a column-ordered query result
type Table struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// Objects turns rows into column-keyed objects; short rows leave trailing columns absent
func (t Table) Objects() []map[string]any {
	out := make([]map[string]any, 0, len(t.Data))
	for _, row := range t.Data {
		obj := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				obj[c] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

// Querier runs one SQL statement against the consolidated database.
// Statement errors come back with perr.ErrorCodeQuery and the upstream message
type Querier interface {
	Query(ctx context.Context, sql string) (Table, error)
	Endpoint() string
}

// HTTPQuerier posts {"query": sql} to the ConsDB REST service
type HTTPQuerier struct {
	c *source.Client
}

// NewHTTPQuerier builds a querier on the shared source client
func NewHTTPQuerier(cfg source.Config) *HTTPQuerier {
	return &HTTPQuerier{c: source.NewClient(Service, cfg)}
}

const queryPath = "/" + Service + "/query"

// Endpoint returns the query url
func (q *HTTPQuerier) Endpoint() string { return q.c.URL(queryPath) }

// Query runs sql. An HTTP 500 carrying a JSON message is the database
// rejecting the statement and becomes a query error; anything else stays a
// transport or status error
func (q *HTTPQuerier) Query(ctx context.Context, sql string) (Table, error) {
	body, err := q.c.Post(ctx, "query", queryPath, map[string]string{"query": sql})
	if err != nil {
		if se, ok := source.AsStatusError(err); ok && se.Status == 500 {
			var payload struct {
				Message string `json:"message"`
			}
			if record.DecodeValue([]byte(se.Body), &payload) == nil && strings.TrimSpace(payload.Message) != "" {
				return Table{}, perr.Wrapf(err, perr.ErrorCodeQuery, "consdb rejected query: %s", payload.Message)
			}
		}
		return Table{}, err
	}
	var t Table
	if err := record.DecodeValue(body, &t); err != nil {
		return Table{}, err
	}
	return t, nil
}

type runner interface {
	Query(ctx context.Context, sql string, args ...any) (pg.Result, error)
}

// PGQuerier talks to the consolidated database directly over pgx
type PGQuerier struct {
	db  runner
	dsn string
}

// NewPGQuerier wraps an open pg client; dsn is only used as the status endpoint label
func NewPGQuerier(db *pg.PG, dsn string) *PGQuerier {
	return &PGQuerier{db: db, dsn: redact(dsn)}
}

// Endpoint returns the redacted dsn
func (q *PGQuerier) Endpoint() string { return q.dsn }

// Query runs sql; *pgconn.PgError values were mapped by the pg client
func (q *PGQuerier) Query(ctx context.Context, sql string) (Table, error) {
	res, err := q.db.Query(ctx, sql)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeQuery) {
			return Table{}, perr.Wrapf(err, perr.ErrorCodeQuery, "consdb rejected query: %s", perr.PgMessage(err))
		}
		return Table{}, err
	}
	return Table{Columns: res.Columns, Data: res.Rows}, nil
}

// redact drops the password from a postgres url
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return dsn[:scheme+3] + user + ":***" + dsn[at:]
	}
	return dsn
}
