// Package mcpserver exposes the portfolio to MCP clients as read-only tools.
package mcpserver

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/app"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

// Tools answers tool calls from the backend's current dataset.
type Tools struct {
	settings settings.Settings
	backend  store.Backend
	log      *zap.Logger
}

// New creates the tool set.
func New(s settings.Settings, backend store.Backend, log *zap.Logger) *Tools {
	return &Tools{settings: s, backend: backend, log: log}
}

// Server registers every tool on a new MCP server.
func (t *Tools) Server(version string) *server.MCPServer {
	s := server.NewMCPServer("fiscops", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("portfolio_totals",
		mcp.WithDescription("Debt, revenue and critical-case totals of the center portfolio, with the annual objective."),
	), t.handleTotals)

	s.AddTool(mcp.NewTool("top_priorities",
		mcp.WithDescription("Highest decision-index dossiers, ranked, with their potential impact on the objective."),
		mcp.WithNumber("n", mcp.Description("Number of dossiers (default 10, max 100)")),
	), t.handlePriorities)

	s.AddTool(mcp.NewTool("find_taxpayers",
		mcp.WithDescription("Search the portfolio by name, sector or company type, optionally filtered by IFU segment and status."),
		mcp.WithString("query", mcp.Description("Case-insensitive text matched against name, sector and type")),
		mcp.WithString("ifu", mcp.Description("IFU segment, e.g. \"IFU 2\"")),
		mcp.WithString("status", mcp.Description("Normal, Critique, En cours or Payé")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
	), t.handleFind)

	s.AddTool(mcp.NewTool("taxpayer_detail",
		mcp.WithDescription("One dossier with its decision index and recommendation."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Taxpayer id, e.g. T0042")),
	), t.handleDetail)

	return s
}

// ServeStdio serves the tools on stdin/stdout until the client disconnects.
func (t *Tools) ServeStdio(version string) error {
	return server.ServeStdio(t.Server(version))
}

func (t *Tools) load(ctx context.Context) (db.Dataset, *mcp.CallToolResult) {
	ds, err := t.backend.Load(ctx)
	if err != nil {
		t.log.Error("mcp load failed", zap.Error(err))
		return db.Dataset{}, mcp.NewToolResultError("data unavailable: " + err.Error())
	}
	return ds, nil
}

func (t *Tools) handleTotals(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds, fail := t.load(ctx)
	if fail != nil {
		return fail, nil
	}
	totals := scoring.ComputeTotals(ds.Taxpayers, t.settings.Thresholds)
	return jsonResult(map[string]any{
		"center":       t.settings.CenterName,
		"period":       t.settings.PeriodLabel,
		"dossiers":     len(ds.Taxpayers),
		"recovered":    totals.Recovered,
		"debtTotal":    totals.DebtTotal,
		"caTotal":      totals.RevenueTotal,
		"ratio":        totals.Ratio,
		"crit":         totals.Critical,
		"objective":    t.settings.Objective,
		"pctObjective": scoring.PctObjective(totals.Recovered, t.settings.Objective),
	})
}

type priorityItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Segment        string  `json:"ifu"`
	Debt           float64 `json:"debt"`
	AgeDays        int     `json:"ageDays"`
	Index          int     `json:"index"`
	Recommendation string  `json:"recommendation"`
}

func (t *Tools) handlePriorities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := req.GetInt("n", scoring.DefaultTopN)
	if n < 1 || n > 100 {
		return mcp.NewToolResultError("n must be between 1 and 100"), nil
	}
	ds, fail := t.load(ctx)
	if fail != nil {
		return fail, nil
	}
	pr := scoring.TopPriorities(ds.Taxpayers, t.settings.Index, n)
	items := make([]priorityItem, 0, len(pr.Top))
	for _, p := range pr.Top {
		items = append(items, priorityItem{
			ID:             p.Taxpayer.ID,
			Name:           p.Taxpayer.Name,
			Segment:        p.Taxpayer.Segment,
			Debt:           p.Taxpayer.Debt,
			AgeDays:        p.Taxpayer.AgeDays,
			Index:          p.Index,
			Recommendation: scoring.Recommendation(p.Index, t.settings.Thresholds),
		})
	}
	return jsonResult(map[string]any{
		"impact":       pr.Impact,
		"pctObjective": scoring.PctObjective(pr.Impact, t.settings.Objective),
		"items":        items,
	})
}

func (t *Tools) handleFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := app.NewState().WithQuery(req.GetString("query", ""))
	if v := req.GetString("ifu", ""); v != "" {
		if !t.settings.HasSegment(v) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown segment %q", v)), nil
		}
		st = st.WithSegment(v)
	}
	if v := req.GetString("status", ""); v != "" {
		st = st.WithStatus(v)
	}
	ds, fail := t.load(ctx)
	if fail != nil {
		return fail, nil
	}
	filtered := app.Filter(ds.Taxpayers, st)
	rows, page := app.Paginate(filtered, req.GetInt("page", 1), t.settings.UI.PageSize)
	if rows == nil {
		rows = []db.Taxpayer{}
	}
	return jsonResult(map[string]any{
		"total": len(filtered),
		"page":  page,
		"pages": app.PageCount(len(filtered), t.settings.UI.PageSize),
		"items": rows,
	})
}

func (t *Tools) handleDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ds, fail := t.load(ctx)
	if fail != nil {
		return fail, nil
	}
	i := ds.Find(id)
	if i < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("taxpayer %s not found", id)), nil
	}
	tp := ds.Taxpayers[i]
	idx := scoring.DecisionIndex(tp, t.settings.Index)
	return jsonResult(map[string]any{
		"taxpayer":       tp,
		"index":          idx,
		"recommendation": scoring.Recommendation(idx, t.settings.Thresholds),
		"critical":       scoring.IsCritical(tp, t.settings.Thresholds),
		"pctObjective":   scoring.PctObjective(tp.Debt, t.settings.Objective),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
