package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// queryParams parses query string values and collects every rejection, so a
// request with several bad parameters reports all of them at once.
type queryParams struct {
	r    *http.Request
	errs []scoring.FieldError
}

func params(r *http.Request) *queryParams {
	return &queryParams{r: r}
}

func (q *queryParams) reject(name, msg string) {
	q.errs = append(q.errs, scoring.FieldError{Field: name, Message: msg})
}

func (q *queryParams) raw(name string) (string, bool) {
	v := q.r.URL.Query().Get(name)
	return v, v != ""
}

// intIn returns the named integer, def when absent. Values outside
// [lo, hi] are rejected.
func (q *queryParams) intIn(name string, def, lo, hi int) int {
	s, ok := q.raw(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.reject(name, "value is not a valid integer")
		return def
	}
	if n < lo {
		q.reject(name, "value must be greater than or equal to "+strconv.Itoa(lo))
		return def
	}
	if n > hi {
		q.reject(name, "value must be less than or equal to "+strconv.Itoa(hi))
		return def
	}
	return n
}

// atLeast is intIn without an upper bound.
func (q *queryParams) atLeast(name string, def, lo int) int {
	return q.intIn(name, def, lo, math.MaxInt)
}

func (q *queryParams) optInt64(name string) *int64 {
	s, ok := q.raw(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		q.reject(name, "value is not a valid integer")
		return nil
	}
	return &n
}

func (q *queryParams) optFloat(name string) *float64 {
	s, ok := q.raw(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		q.reject(name, "value is not a valid number")
		return nil
	}
	return &f
}

// dateLayouts are tried in order for date filters.
var dateLayouts = []string{
	time.RFC3339,
	domain.DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (q *queryParams) optDate(name string) *time.Time {
	s, ok := q.raw(name)
	if !ok {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	q.reject(name, "value is not a valid date")
	return nil
}

// ok writes a 422 for any collected rejection and reports whether the
// handler may continue.
func (q *queryParams) ok(w http.ResponseWriter) bool {
	if len(q.errs) == 0 {
		return true
	}
	writeValidation(w, "invalid query parameters", q.errs)
	return false
}

// pathID parses an integer URL parameter, writing a 422 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeValidation(w, "invalid path parameter", []scoring.FieldError{
			{Field: name, Message: "value is not a valid integer"},
		})
		return 0, false
	}
	return id, true
}
