// Package api serves a read-only HTTP view of a center's portfolio.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/app"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/report"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

// MaxTopN bounds the n parameter of /api/priorities.
const MaxTopN = 100

const loadTimeout = 15 * time.Second

// Env is the boot configuration published on /env.
type Env struct {
	URL string `json:"SUPABASE_URL"`
	Key string `json:"SUPABASE_ANON_KEY"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// TotalsResponse is the body of /api/totals.
type TotalsResponse struct {
	scoring.Totals
	Objective    float64 `json:"objective"`
	PctObjective float64 `json:"pctObjective"`
}

// PriorityItem is a ranked dossier.
type PriorityItem struct {
	scoring.Priority
	Recommendation string `json:"recommendation"`
}

// PrioritiesResponse is the body of /api/priorities.
type PrioritiesResponse struct {
	Impact       float64        `json:"impact"`
	PctObjective float64        `json:"pctObjective"`
	Items        []PriorityItem `json:"items"`
}

// PageResponse is the body of /api/taxpayers.
type PageResponse struct {
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Items []db.Taxpayer `json:"items"`
}

// DetailResponse is the body of /api/taxpayers/{id}.
type DetailResponse struct {
	db.Taxpayer
	Index          int     `json:"index"`
	Recommendation string  `json:"recommendation"`
	Critical       bool    `json:"critical"`
	PctObjective   float64 `json:"pctObjective"`
}

// Server answers API requests from the backend's current dataset.
type Server struct {
	settings settings.Settings
	backend  store.Backend
	centerID string
	env      Env
	log      *zap.Logger
}

// New creates a Server.
func New(s settings.Settings, backend store.Backend, centerID string, env Env, log *zap.Logger) *Server {
	return &Server{settings: s, backend: backend, centerID: centerID, env: env, log: log}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "fiscops",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()
	s.log.Info("api listening", zap.String("addr", addr), zap.String("center", s.centerID))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// Handle routes one request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	path := string(ctx.Path())
	switch {
	case path == "/env":
		s.handleEnv(ctx)
	case path == "/api/totals":
		s.withData(ctx, s.handleTotals)
	case path == "/api/priorities":
		s.withData(ctx, s.handlePriorities)
	case path == "/api/segments":
		s.withData(ctx, s.handleSegments)
	case path == "/api/taxpayers":
		s.withData(ctx, s.handleTaxpayers)
	case strings.HasPrefix(path, "/api/taxpayers/"):
		id := strings.TrimPrefix(path, "/api/taxpayers/")
		s.withData(ctx, func(ctx *fasthttp.RequestCtx, ds db.Dataset) { s.handleTaxpayer(ctx, ds, id) })
	case path == "/api/report.pdf":
		s.withData(ctx, s.handleReport)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
	}
}

func (s *Server) withData(ctx *fasthttp.RequestCtx, h func(*fasthttp.RequestCtx, db.Dataset)) {
	loadCtx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	ds, err := s.backend.Load(loadCtx)
	if err != nil {
		s.log.Error("api load failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusServiceUnavailable, "Data unavailable")
		return
	}
	h(ctx, ds)
}

// handleEnv publishes the boot configuration as a script, never cached.
func (s *Server) handleEnv(ctx *fasthttp.RequestCtx) {
	b, err := json.Marshal(s.env)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.SetContentType("application/javascript; charset=utf-8")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBodyString("window.__FISCOPS_ENV__ = " + string(b) + ";")
}

func (s *Server) handleTotals(ctx *fasthttp.RequestCtx, ds db.Dataset) {
	totals := scoring.ComputeTotals(ds.Taxpayers, s.settings.Thresholds)
	writeJSON(ctx, TotalsResponse{
		Totals:       totals,
		Objective:    s.settings.Objective,
		PctObjective: scoring.PctObjective(totals.Recovered, s.settings.Objective),
	})
}

func (s *Server) handlePriorities(ctx *fasthttp.RequestCtx, ds db.Dataset) {
	n, err := intArg(ctx, "n", scoring.DefaultTopN)
	if err != nil || n < 1 || n > MaxTopN {
		writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("n must be between 1 and %d", MaxTopN))
		return
	}
	pr := scoring.TopPriorities(ds.Taxpayers, s.settings.Index, n)
	resp := PrioritiesResponse{
		Impact:       pr.Impact,
		PctObjective: scoring.PctObjective(pr.Impact, s.settings.Objective),
		Items:        make([]PriorityItem, 0, len(pr.Top)),
	}
	for _, p := range pr.Top {
		resp.Items = append(resp.Items, PriorityItem{Priority: p, Recommendation: scoring.Recommendation(p.Index, s.settings.Thresholds)})
	}
	writeJSON(ctx, resp)
}

func (s *Server) handleSegments(ctx *fasthttp.RequestCtx, ds db.Dataset) {
	writeJSON(ctx, scoring.SegmentSummaries(ds.Taxpayers, s.settings))
}

func (s *Server) handleTaxpayers(ctx *fasthttp.RequestCtx, ds db.Dataset) {
	page, err := intArg(ctx, "page", 1)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "page must be a number")
		return
	}
	args := ctx.QueryArgs()
	st := app.NewState().WithQuery(string(args.Peek("q")))
	if v := string(args.Peek("ifu")); v != "" {
		st = st.WithSegment(v)
	}
	if v := string(args.Peek("status")); v != "" {
		st = st.WithStatus(v)
	}
	filtered := app.Filter(ds.Taxpayers, st)
	rows, page := app.Paginate(filtered, page, s.settings.UI.PageSize)
	if rows == nil {
		rows = []db.Taxpayer{}
	}
	writeJSON(ctx, PageResponse{
		Total: len(filtered),
		Page:  page,
		Pages: app.PageCount(len(filtered), s.settings.UI.PageSize),
		Items: rows,
	})
}

func (s *Server) handleTaxpayer(ctx *fasthttp.RequestCtx, ds db.Dataset, id string) {
	i := ds.Find(id)
	if id == "" || i < 0 {
		writeError(ctx, fasthttp.StatusNotFound, "Taxpayer not found")
		return
	}
	t := ds.Taxpayers[i]
	idx := scoring.DecisionIndex(t, s.settings.Index)
	writeJSON(ctx, DetailResponse{
		Taxpayer:       t,
		Index:          idx,
		Recommendation: scoring.Recommendation(idx, s.settings.Thresholds),
		Critical:       scoring.IsCritical(t, s.settings.Thresholds),
		PctObjective:   scoring.PctObjective(t.Debt, s.settings.Objective),
	})
}

func (s *Server) handleReport(ctx *fasthttp.RequestCtx, ds db.Dataset) {
	totals := scoring.ComputeTotals(ds.Taxpayers, s.settings.Thresholds)
	pr := scoring.TopPriorities(ds.Taxpayers, s.settings.Index, scoring.DefaultTopN)
	var buf bytes.Buffer
	if err := report.WritePDF(&buf, report.Build(s.settings, totals, pr)); err != nil {
		s.log.Error("report failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "Report failed")
		return
	}
	ctx.SetContentType("application/pdf")
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(s.centerID)))
	ctx.SetBody(buf.Bytes())
}

var errBadArg = errors.New("bad argument")

func intArg(ctx *fasthttp.RequestCtx, name string, def int) (int, error) {
	raw := ctx.QueryArgs().Peek(name)
	if len(raw) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errBadArg, name)
	}
	return n, nil
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	b, _ := json.Marshal(ErrorResponse{Status: status, Message: message})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}
