// Package upstream provides an in-process fake of the observatory REST
// services for adapter tests: offset/limit paged endpoints, call counting,
// failure injection and a ConsDB style query endpoint
package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// Server is a chi router behind httptest
type Server struct {
	*httptest.Server

	r chi.Router

	mu      sync.Mutex
	calls   map[string]int
	queries map[string][]url.Values
	bodies  map[string][][]byte
	fails   map[string][]int
	empty   map[string]int
}

// New starts a server that is closed when the test ends
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		r:       chi.NewRouter(),
		calls:   map[string]int{},
		queries: map[string][]url.Values{},
		bodies:  map[string][][]byte{},
		fails:   map[string][]int{},
		empty:   map[string]int{},
	}
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.record(r, nil)
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	})
	s.Server = httptest.NewServer(s.r)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) record(r *http.Request, body []byte) (fail int) {
	fail, _ = s.take(r, body)
	return fail
}

// take records r and pops the next injected failure or empty reply for its path
func (s *Server) take(r *http.Request, body []byte) (fail int, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := r.URL.Path
	s.calls[p]++
	s.queries[p] = append(s.queries[p], r.URL.Query())
	if body != nil {
		s.bodies[p] = append(s.bodies[p], body)
	}
	if q := s.fails[p]; len(q) > 0 {
		fail, s.fails[p] = q[0], q[1:]
		return fail, false
	}
	if s.empty[p] > 0 {
		s.empty[p]--
		return 0, true
	}
	return 0, false
}

// FailNext makes the next len(statuses) calls to path answer with those statuses
// before the regular handler runs again
func (s *Server) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[path] = append(s.fails[path], statuses...)
}

// EmptyNext makes the next n calls to path answer 200 with an empty value of
// the handler's shape, the way a stale pooled upstream connection does
func (s *Server) EmptyNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.empty[path] += n
}

// Calls returns how many requests hit path
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Queries returns the query strings received on path in order
func (s *Server) Queries(path string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.queries[path]...)
}

// Bodies returns the POST bodies received on path in order
func (s *Server) Bodies(path string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.bodies[path]...)
}

// Paged serves records on GET path, honouring offset and limit. Calls with
// limit=1 are counted like any other
func (s *Server) Paged(path string, records []map[string]any) {
	s.PagedFunc(path, func(url.Values) []map[string]any { return records })
}

// PagedFunc is Paged with records chosen from the query (e.g. per instrument)
func (s *Server) PagedFunc(path string, pick func(q url.Values) []map[string]any) {
	s.r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		code, empty := s.take(r, nil)
		if code != 0 {
			http.Error(w, `{"detail":"injected failure"}`, code)
			return
		}
		if empty {
			JSON(w, http.StatusOK, []map[string]any{})
			return
		}
		q := r.URL.Query()
		all := pick(q)
		off, _ := strconv.Atoi(q.Get("offset"))
		lim, err := strconv.Atoi(q.Get("limit"))
		if err != nil || lim <= 0 {
			lim = len(all)
		}
		page := []map[string]any{}
		if off < len(all) {
			end := min(off+lim, len(all))
			page = all[off:end]
		}
		JSON(w, http.StatusOK, page)
	})
}

// Endless serves GET path with full pages of synthetic records forever
func (s *Server) Endless(path string) {
	s.r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		if code := s.record(r, nil); code != 0 {
			http.Error(w, `{"detail":"injected failure"}`, code)
			return
		}
		q := r.URL.Query()
		off, _ := strconv.Atoi(q.Get("offset"))
		lim, _ := strconv.Atoi(q.Get("limit"))
		page := make([]map[string]any, lim)
		for i := range page {
			page[i] = map[string]any{"id": strconv.Itoa(off + i)}
		}
		JSON(w, http.StatusOK, page)
	})
}

// Static serves a fixed JSON value on GET path
func (s *Server) Static(path string, v any) {
	s.r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		code, empty := s.take(r, nil)
		if code != 0 {
			http.Error(w, `{"detail":"injected failure"}`, code)
			return
		}
		if empty {
			JSON(w, http.StatusOK, map[string]any{})
			return
		}
		JSON(w, http.StatusOK, v)
	})
}

// Status always answers GET path with status and body
func (s *Server) Status(path string, status int, body string) {
	s.r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		s.record(r, nil)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

// QueryFunc answers one SQL statement with columns and rows, or an error
// message which is returned as HTTP 500 {"message": ...}
type QueryFunc func(sql string) (columns []string, data [][]any, errMsg string)

// Query serves a ConsDB style POST endpoint taking {"query": sql}
func (s *Server) Query(path string, fn QueryFunc) {
	s.r.Post(path, func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Query string `json:"query"`
		}
		b, _ := io.ReadAll(r.Body)
		code, empty := s.take(r, b)
		if code != 0 {
			http.Error(w, `{"detail":"injected failure"}`, code)
			return
		}
		if empty {
			JSON(w, http.StatusOK, map[string]any{"columns": []string{}, "data": [][]any{}})
			return
		}
		if err := json.Unmarshal(b, &in); err != nil {
			JSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
			return
		}
		cols, data, msg := fn(in.Query)
		if msg != "" {
			JSON(w, http.StatusInternalServerError, map[string]any{"message": msg})
			return
		}
		JSON(w, http.StatusOK, map[string]any{"columns": cols, "data": data})
	})
}

// Handle mounts an arbitrary handler on method and path
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.r.MethodFunc(method, path, func(w http.ResponseWriter, r *http.Request) {
		s.record(r, nil)
		h(w, r)
	})
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
