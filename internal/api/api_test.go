package api

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

type failingBackend struct{}

func (failingBackend) Mode() store.Mode { return store.ModeRemote }

func (failingBackend) Load(context.Context) (db.Dataset, error) {
	return db.Dataset{}, errors.New("connection refused")
}

func (failingBackend) Save(context.Context, db.Dataset) error { return nil }

func newServer(t *testing.T) *Server {
	t.Helper()
	s := settings.Defaults()
	local := store.NewLocal(kv.NewMemory(), s, rand.New(rand.NewSource(3)), zap.NewNop())
	return New(s, local, "OWENDO", Env{URL: "/srv/fiscops.sqlite", Key: "anon"}, zap.NewNop())
}

func do(s *Server, method, uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.Handle(&ctx)
	return &ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx, v any) {
	t.Helper()
	if err := json.Unmarshal(ctx.Response.Body(), v); err != nil {
		t.Fatalf("decode %s: %v", ctx.Response.Body(), err)
	}
}

func TestEnv(t *testing.T) {
	ctx := do(newServer(t), "GET", "/env")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status = %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Cache-Control")); got != "no-store" {
		t.Errorf("cache-control = %q", got)
	}
	if ct := string(ctx.Response.Header.ContentType()); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("content-type = %q", ct)
	}
	want := `window.__FISCOPS_ENV__ = {"SUPABASE_URL":"/srv/fiscops.sqlite","SUPABASE_ANON_KEY":"anon"};`
	if got := string(ctx.Response.Body()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestTotals(t *testing.T) {
	ctx := do(newServer(t), "GET", "/api/totals")
	var got TotalsResponse
	decode(t, ctx, &got)
	if got.DebtTotal <= 0 || got.RevenueTotal <= got.DebtTotal {
		t.Errorf("totals = %+v", got)
	}
	if got.Recovered != 0 || got.PctObjective != 0 {
		t.Errorf("recovered should be zero, got %+v", got)
	}
	if got.Objective != settings.Defaults().Objective {
		t.Errorf("objective = %v", got.Objective)
	}
}

func TestPriorities(t *testing.T) {
	s := newServer(t)
	var got PrioritiesResponse
	decode(t, do(s, "GET", "/api/priorities"), &got)
	if len(got.Items) != scoring.DefaultTopN {
		t.Fatalf("items = %d, want %d", len(got.Items), scoring.DefaultTopN)
	}
	for i := 1; i < len(got.Items); i++ {
		if got.Items[i].Index > got.Items[i-1].Index {
			t.Errorf("items not ranked at %d", i)
		}
	}
	if got.Items[0].Recommendation == "" {
		t.Error("recommendation missing")
	}

	decode(t, do(s, "GET", "/api/priorities?n=3"), &got)
	if len(got.Items) != 3 {
		t.Errorf("n=3 returned %d items", len(got.Items))
	}

	for _, uri := range []string{"/api/priorities?n=0", "/api/priorities?n=abc", "/api/priorities?n=1000"} {
		if ctx := do(s, "GET", uri); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", uri, ctx.Response.StatusCode())
		}
	}
}

func TestSegments(t *testing.T) {
	var got []scoring.SegmentSummary
	decode(t, do(newServer(t), "GET", "/api/segments"), &got)
	if len(got) != len(settings.Defaults().SegmentNames) {
		t.Fatalf("segments = %d", len(got))
	}
	var count int
	for _, s := range got {
		count += s.Count
	}
	if count != store.SeedSize {
		t.Errorf("segment counts sum to %d, want %d", count, store.SeedSize)
	}
}

func TestTaxpayersPage(t *testing.T) {
	s := newServer(t)

	var got PageResponse
	decode(t, do(s, "GET", "/api/taxpayers?page=99"), &got)
	if got.Total != store.SeedSize || got.Pages != 5 || got.Page != 5 {
		t.Errorf("page = %d/%d total %d", got.Page, got.Pages, got.Total)
	}
	if len(got.Items) != 20 {
		t.Errorf("last page items = %d, want 20", len(got.Items))
	}

	decode(t, do(s, "GET", "/api/taxpayers?q=contribuable%2012&status=Critique"), &got)
	for _, tp := range got.Items {
		if tp.Status != db.StatusCritical || !strings.Contains(tp.Name, "Contribuable 12") {
			t.Errorf("unexpected match %+v", tp)
		}
	}

	decode(t, do(s, "GET", "/api/taxpayers?q=zzz"), &got)
	if got.Total != 0 || got.Pages != 1 || got.Items == nil {
		t.Errorf("empty result = %+v", got)
	}
}

func TestTaxpayerDetail(t *testing.T) {
	s := newServer(t)
	var got DetailResponse
	decode(t, do(s, "GET", "/api/taxpayers/T0004"), &got)
	if got.ID != "T0004" || got.Name != "Contribuable 4" {
		t.Errorf("detail = %+v", got)
	}
	if got.Recommendation == "" {
		t.Error("recommendation missing")
	}

	ctx := do(s, "GET", "/api/taxpayers/T9999")
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Errorf("unknown id status = %d", ctx.Response.StatusCode())
	}
	var e ErrorResponse
	decode(t, ctx, &e)
	if e.Status != fasthttp.StatusNotFound || e.Message == "" {
		t.Errorf("error body = %+v", e)
	}
}

func TestReportPDF(t *testing.T) {
	ctx := do(newServer(t), "GET", "/api/report.pdf")
	if ct := string(ctx.Response.Header.ContentType()); ct != "application/pdf" {
		t.Errorf("content-type = %q", ct)
	}
	if !strings.Contains(string(ctx.Response.Header.Peek("Content-Disposition")), "FiscOps_Rapport_Owendo.pdf") {
		t.Errorf("disposition = %q", ctx.Response.Header.Peek("Content-Disposition"))
	}
	if !strings.HasPrefix(string(ctx.Response.Body()), "%PDF-") {
		t.Error("body is not a PDF")
	}
}

func TestRoutingErrors(t *testing.T) {
	s := newServer(t)
	tests := []struct {
		method, uri string
		want        int
	}{
		{"GET", "/nope", fasthttp.StatusNotFound},
		{"POST", "/api/totals", fasthttp.StatusMethodNotAllowed},
		{"DELETE", "/api/taxpayers/T0001", fasthttp.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		ctx := do(s, tt.method, tt.uri)
		if ctx.Response.StatusCode() != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.uri, ctx.Response.StatusCode(), tt.want)
		}
		var e ErrorResponse
		decode(t, ctx, &e)
		if e.Status != tt.want {
			t.Errorf("%s %s body status = %d", tt.method, tt.uri, e.Status)
		}
	}
}

func TestLoadFailure(t *testing.T) {
	s := New(settings.Defaults(), failingBackend{}, "OWENDO", Env{}, zap.NewNop())
	ctx := do(s, "GET", "/api/totals")
	if ctx.Response.StatusCode() != fasthttp.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", ctx.Response.StatusCode())
	}
}
