package mcpserver

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/kv"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
)

type brokenBackend struct{}

func (brokenBackend) Mode() store.Mode { return store.ModeRemote }

func (brokenBackend) Load(context.Context) (db.Dataset, error) {
	return db.Dataset{}, errors.New("connection refused")
}

func (brokenBackend) Save(context.Context, db.Dataset) error { return nil }

func newTools() *Tools {
	s := settings.Defaults()
	local := store.NewLocal(kv.NewMemory(), s, rand.New(rand.NewSource(5)), zap.NewNop())
	return New(s, local, zap.NewNop())
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", res.Content[0])
	}
	if res.IsError {
		t.Fatalf("tool error: %s", text.Text)
	}
	if err := json.Unmarshal([]byte(text.Text), v); err != nil {
		t.Fatalf("decode %s: %v", text.Text, err)
	}
}

func TestTotals(t *testing.T) {
	res, err := newTools().handleTotals(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	resultJSON(t, res, &got)
	if got["dossiers"] != float64(store.SeedSize) {
		t.Errorf("dossiers = %v", got["dossiers"])
	}
	if got["debtTotal"].(float64) <= 0 {
		t.Errorf("debtTotal = %v", got["debtTotal"])
	}
}

func TestPriorities(t *testing.T) {
	tools := newTools()
	res, err := tools.handlePriorities(context.Background(), call(map[string]any{"n": float64(4)}))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Impact float64        `json:"impact"`
		Items  []priorityItem `json:"items"`
	}
	resultJSON(t, res, &got)
	if len(got.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(got.Items))
	}
	var sum float64
	for _, it := range got.Items {
		sum += it.Debt
	}
	if sum != got.Impact {
		t.Errorf("impact = %v, want %v", got.Impact, sum)
	}

	res, _ = tools.handlePriorities(context.Background(), call(map[string]any{"n": float64(0)}))
	if !res.IsError {
		t.Error("n=0 should be rejected")
	}
}

func TestFindTaxpayers(t *testing.T) {
	tools := newTools()
	res, err := tools.handleFind(context.Background(), call(map[string]any{"query": "BTP", "status": "Normal"}))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Total int           `json:"total"`
		Items []db.Taxpayer `json:"items"`
	}
	resultJSON(t, res, &got)
	if got.Total == 0 {
		t.Fatal("expected BTP matches")
	}
	for _, tp := range got.Items {
		if tp.Sector != "BTP" || tp.StatusOrDefault() != db.StatusNormal {
			t.Errorf("unexpected match %+v", tp)
		}
	}

	res, _ = tools.handleFind(context.Background(), call(map[string]any{"ifu": "IFU 9"}))
	if !res.IsError {
		t.Error("unknown segment should be rejected")
	}
}

func TestTaxpayerDetail(t *testing.T) {
	tools := newTools()
	res, err := tools.handleDetail(context.Background(), call(map[string]any{"id": "T0010"}))
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Taxpayer       db.Taxpayer `json:"taxpayer"`
		Index          int         `json:"index"`
		Recommendation string      `json:"recommendation"`
	}
	resultJSON(t, res, &got)
	if got.Taxpayer.ID != "T0010" || got.Recommendation == "" {
		t.Errorf("detail = %+v", got)
	}

	res, _ = tools.handleDetail(context.Background(), call(map[string]any{"id": "T9999"}))
	if !res.IsError {
		t.Error("unknown id should be an error result")
	}
	res, _ = tools.handleDetail(context.Background(), call(nil))
	if !res.IsError {
		t.Error("missing id should be an error result")
	}
}

func TestLoadFailureIsToolError(t *testing.T) {
	tools := New(settings.Defaults(), brokenBackend{}, zap.NewNop())
	res, err := tools.handleTotals(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("load failure should be reported as a tool error")
	}
}

func TestServerRegistersTools(t *testing.T) {
	if s := newTools().Server("test"); s == nil {
		t.Fatal("Server returned nil")
	}
}
