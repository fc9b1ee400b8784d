package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"trade-journal/internal/analytics"
)

// handleBuckets serves one timeframe as a table. Query parameters: sort
// (column), desc, page, pageSize, and filter.<column>=<substring>.
func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	tf, ok := analytics.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if !ok {
		s.badRequest(w, r, "timeframe must be daily, weekly, or monthly")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	q, err := tableQuery(r)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	agg := sess.Aggregation()
	page, err := analytics.Table(agg.Buckets(tf), q)
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"timeframe": tf,
		"skipped":   agg.Skipped,
		"table":     page,
	})
}

func tableQuery(r *http.Request) (analytics.TableQuery, error) {
	v := r.URL.Query()
	q := analytics.TableQuery{
		SortBy:  analytics.Column(v.Get("sort")),
		Desc:    v.Get("desc") == "true" || v.Get("desc") == "1",
		Filters: map[analytics.Column]string{},
	}

	var err error
	if p := v.Get("page"); p != "" {
		if q.Page, err = strconv.Atoi(p); err != nil {
			return q, err
		}
	}
	if p := v.Get("pageSize"); p != "" {
		if q.PageSize, err = strconv.Atoi(p); err != nil {
			return q, err
		}
	}
	for key, vals := range v {
		if col, ok := strings.CutPrefix(key, "filter."); ok && len(vals) > 0 {
			q.Filters[analytics.Column(col)] = vals[0]
		}
	}
	return q, nil
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.engine.Summarize(sess.Store.Details()))
}

// handleCalendar serves a month grid. year and month default to the
// current month.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(s.engine.Location())
	year, month := now.Year(), int(now.Month())

	var err error
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			s.badRequest(w, r, "invalid year")
			return
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			s.badRequest(w, r, "invalid month")
			return
		}
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	cal, err := s.engine.Calendar(sess.Aggregation(), year, time.Month(month))
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, cal)
}

func (s *Server) handleCumulative(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.engine.CumulativePnL(sess.Store.Details()))
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	switch chi.URLParam(r, "kind") {
	case "pnl":
		writeJSON(w, r, http.StatusOK, s.engine.PnLDistribution(sess.Store.Details()))
	case "duration":
		writeJSON(w, r, http.StatusOK, s.engine.DurationDistribution(sess.Store.Details()))
	default:
		s.badRequest(w, r, "distribution must be pnl or duration")
	}
}

func (s *Server) handleSetups(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, analytics.WinRateBySetup(sess.Store.Trades()))
}

func (s *Server) handleMonthlyOverview(w http.ResponseWriter, r *http.Request) {
	year := time.Now().In(s.engine.Location()).Year()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, r, "invalid year")
			return
		}
		year = y
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.engine.MonthlyOverview(sess.Store.Details(), year))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="journal.xlsx"`)
	if err := analytics.ExportXLSX(w, sess.Aggregation()); err != nil {
		s.log.Error().Err(err).Msg("Failed to write xlsx export")
	}
}
