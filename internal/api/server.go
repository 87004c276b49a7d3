package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pbaille/ots/internal/domain"
	"github.com/pbaille/ots/internal/ledger"
	"github.com/rs/zerolog/log"
)

// Viewer gives read access to the ledger
type Viewer interface {
	View(ctx context.Context, fn func(*ledger.Ledger) error, opts ...ledger.Option) error
}

// Server serves a read-only JSON view of the ledger
type Server struct {
	store Viewer
	addr  string
	now   func() time.Time
}

// New creates a new API server
func New(s Viewer, addr string) *Server {
	return &Server{store: s, addr: addr, now: time.Now}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /timesheets", s.listTimesheets)
	mux.HandleFunc("GET /running", s.running)
	mux.HandleFunc("GET /last", s.last)
	mux.HandleFunc("GET /aliases", s.listAliases)

	// Health check
	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	log.Info().Str("addr", s.addr).Msg("starting server")
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TimesheetView is a timesheet as served by the API
type TimesheetView struct {
	Index string `json:"index"`
	*domain.Timesheet
	Running bool    `json:"running"`
	Hours   float64 `json:"hours"`
}

// DayView lists the timesheets of one date
type DayView struct {
	Date       string          `json:"date"`
	Weekday    string          `json:"weekday"`
	Timesheets []TimesheetView `json:"timesheets"`
	TotalHours float64         `json:"total_hours"`
}

const maxDays = 31

func (s *Server) listTimesheets(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	date := domain.Day(now)
	days := 1

	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, d, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	if n := r.URL.Query().Get("days"); n != "" {
		parsed, err := strconv.Atoi(n)
		if err != nil || parsed < 1 || parsed > maxDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 31")
			return
		}
		days = parsed
	}

	var views []DayView
	err := s.store.View(r.Context(), func(l *ledger.Ledger) error {
		reports, err := l.Days(date, days)
		if err != nil {
			return err
		}
		for _, report := range reports {
			views = append(views, dayView(report, now))
		}
		return nil
	}, ledger.WithClock(s.now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days": views,
	})
}

func dayView(report ledger.DayReport, now time.Time) DayView {
	view := DayView{
		Date:       domain.DateKey(report.Date),
		Weekday:    report.Date.Weekday().String(),
		Timesheets: []TimesheetView{},
		TotalHours: domain.Hours(report.Total),
	}
	for _, row := range report.Rows {
		view.Timesheets = append(view.Timesheets, timesheetView(row.Index, row.Timesheet, now))
	}
	return view
}

func timesheetView(index string, ts *domain.Timesheet, now time.Time) TimesheetView {
	return TimesheetView{
		Index:     index,
		Timesheet: ts,
		Running:   ts.IsRunning(),
		Hours:     domain.Hours(ts.DurationAt(now)),
	}
}

func (s *Server) running(w http.ResponseWriter, r *http.Request) {
	s.writeTimesheet(w, r, (*ledger.Ledger).Running, "no timesheet running")
}

func (s *Server) last(w http.ResponseWriter, r *http.Request) {
	s.writeTimesheet(w, r, (*ledger.Ledger).LastRunning, "no timesheet stopped recently")
}

// writeTimesheet responds with the timesheet pick selects, labelled with its index
func (s *Server) writeTimesheet(w http.ResponseWriter, r *http.Request, pick func(*ledger.Ledger) *domain.Timesheet, missing string) {
	now := s.now()
	var view *TimesheetView
	err := s.store.View(r.Context(), func(l *ledger.Ledger) error {
		ts := pick(l)
		if ts == nil {
			return nil
		}
		report, err := l.Day(ts.Date)
		if err != nil {
			return err
		}
		for _, row := range report.Rows {
			if row.Timesheet == ts {
				v := timesheetView(row.Index, ts, now)
				view = &v
			}
		}
		return nil
	}, ledger.WithClock(s.now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if view == nil {
		writeError(w, http.StatusNotFound, missing)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) listAliases(w http.ResponseWriter, r *http.Request) {
	var aliases []*domain.Alias
	err := s.store.View(r.Context(), func(l *ledger.Ledger) error {
		aliases = l.Aliases()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aliases": aliases,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
