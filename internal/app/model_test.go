package app

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lndambition2025-ops/fiscops/internal/auth"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
	"github.com/lndambition2025-ops/fiscops/internal/syncer"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fakeSync struct {
	triggers []db.Dataset
	flushed  int
	results  chan syncer.Result
}

func (f *fakeSync) Trigger(ds db.Dataset) { f.triggers = append(f.triggers, ds.Clone()) }

func (f *fakeSync) Flush(context.Context) { f.flushed++ }

func (f *fakeSync) Results() <-chan syncer.Result { return f.results }

type fakeAuth struct {
	email, password string
	signInErr       error
	signedOut       bool
}

func (f *fakeAuth) Session(context.Context) (*auth.Session, error) { return nil, auth.ErrNoSession }

func (f *fakeAuth) SignIn(_ context.Context, email, password string) error {
	f.email, f.password = email, password
	return f.signInErr
}

func (f *fakeAuth) SignUp(_ context.Context, email, password string) error {
	f.email, f.password = email, password
	return nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.signedOut = true
	return nil
}

func testData() db.Dataset {
	return store.Seed(rand.New(rand.NewSource(1)), settings.Defaults())
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		updated, _ := m.Update(k)
		m = updated.(Model)
	}
	return m
}

func loadedModel(t *testing.T, opts Options) (Model, *fakeSync) {
	t.Helper()
	fs := &fakeSync{results: make(chan syncer.Result, 1)}
	opts.Settings = settings.Defaults()
	opts.Sync = fs
	opts.Now = func() time.Time { return fixedNow }
	m := New(opts)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	updated, _ = updated.(Model).Update(DataLoadedMsg{Data: testData()})
	return updated.(Model), fs
}

func TestNewModelLocalSkipsLogin(t *testing.T) {
	m := New(Options{Settings: settings.Defaults()})
	if !m.authed {
		t.Error("local mode should not require sign-in")
	}
	if m.loaded {
		t.Error("new model should not have data yet")
	}
	if m.State() != NewState() {
		t.Errorf("state = %+v, want initial state", m.State())
	}
}

func TestViewKeys(t *testing.T) {
	m, _ := loadedModel(t, Options{})

	m = press(m, runes("3"))
	if m.state.View != ViewPlan {
		t.Errorf("view = %v, want %v", m.state.View, ViewPlan)
	}
	m = press(m, runes("5"))
	if m.state.View != ViewReport {
		t.Errorf("view = %v, want %v", m.state.View, ViewReport)
	}
	m = press(m, runes("1"))
	if m.state.View != ViewPortfolio {
		t.Errorf("view = %v, want %v", m.state.View, ViewPortfolio)
	}
}

func TestEveryViewHasAKey(t *testing.T) {
	if len(viewKeys) != len(Views) {
		t.Fatalf("%d view keys for %d views", len(viewKeys), len(Views))
	}
	for i, v := range Views {
		key := string(rune('1' + i))
		m, _ := loadedModel(t, Options{})
		if v == ViewPortfolio {
			m = press(m, runes(KeyViewReport))
		}
		m = press(m, runes(key))
		if m.state.View != v {
			t.Errorf("key %s: view = %v, want %v", key, m.state.View, v)
		}
	}
}

func TestPaginationClamps(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	for i := 0; i < 10; i++ {
		m = press(m, runes("l"))
	}
	if m.state.Page != 5 {
		t.Errorf("page = %d, want 5 (120 records / 25)", m.state.Page)
	}
	for i := 0; i < 10; i++ {
		m = press(m, tea.KeyMsg{Type: tea.KeyLeft})
	}
	if m.state.Page != 1 {
		t.Errorf("page = %d, want 1", m.state.Page)
	}
}

func TestSearchResetsPage(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	m = press(m, runes("l"), runes("l"))
	if m.state.Page != 3 {
		t.Fatalf("page = %d, want 3", m.state.Page)
	}

	m = press(m, runes("/"))
	if !m.searching {
		t.Fatal("'/' should start search")
	}
	m = press(m, runes("CONTRIBUABLE 1"))
	if m.state.Query != "CONTRIBUABLE 1" {
		t.Errorf("query = %q", m.state.Query)
	}
	if m.state.Page != 1 {
		t.Errorf("page = %d, want 1 after editing the query", m.state.Page)
	}
	if n := len(Filter(m.data.Taxpayers, m.state)); n != 32 {
		t.Errorf("matches = %d, want 32", n)
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.searching {
		t.Error("enter should leave search mode")
	}
	if m.state.Query != "CONTRIBUABLE 1" {
		t.Error("enter should keep the query")
	}

	m = press(m, runes("/"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.state.Query != "" {
		t.Errorf("esc should clear the query, got %q", m.state.Query)
	}
}

func TestSegmentFilterCycle(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	m = press(m, runes("l"), runes("s"))
	if m.state.Segment != "IFU 1" {
		t.Errorf("segment = %q, want IFU 1", m.state.Segment)
	}
	if m.state.Page != 1 {
		t.Errorf("page = %d, want 1", m.state.Page)
	}
	for i := 0; i < len(m.settings.SegmentNames); i++ {
		m = press(m, runes("s"))
	}
	if m.state.Segment != All {
		t.Errorf("segment = %q, want %q after a full cycle", m.state.Segment, All)
	}
}

func TestStatusFilter(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	m = press(m, runes("f"), runes("f"))
	if m.state.Status != db.StatusCritical {
		t.Fatalf("status = %q, want %q", m.state.Status, db.StatusCritical)
	}
	for _, tp := range Filter(m.data.Taxpayers, m.state) {
		if tp.Status != db.StatusCritical {
			t.Fatalf("filtered %s has status %q", tp.ID, tp.Status)
		}
	}
}

func TestCursorOpensDossier(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	m = press(m, runes("j"), runes("j"), runes("k"), runes("j"))
	if m.state.Cursor != 2 {
		t.Fatalf("cursor = %d, want 2", m.state.Cursor)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state.OpenID != "T0003" {
		t.Errorf("open id = %q, want T0003", m.state.OpenID)
	}
	if !strings.Contains(m.View(), "Indice de décision") {
		t.Error("overlay should show the decision index")
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.state.OpenID != "" {
		t.Error("esc should close the overlay")
	}
}

func TestCommitDossier(t *testing.T) {
	m, fs := loadedModel(t, Options{})
	m = press(m, runes("j"), runes("j"), tea.KeyMsg{Type: tea.KeyEnter})
	before := m.data.Taxpayers[2]
	wantSegment := cycle(m.settings.SegmentNames, before.Segment)

	m = press(m,
		runes("Relance envoyée"),
		tea.KeyMsg{Type: tea.KeyTab},
		tea.KeyMsg{Type: tea.KeyShiftTab},
		tea.KeyMsg{Type: tea.KeyCtrlS},
	)

	if m.state.OpenID != "" {
		t.Error("commit should close the overlay")
	}
	got := m.data.Taxpayers[m.data.Find("T0003")]
	if got.Notes != "Relance envoyée" {
		t.Errorf("notes = %q", got.Notes)
	}
	if got.Segment != wantSegment {
		t.Errorf("segment = %q, want %q", got.Segment, wantSegment)
	}
	if got.Status != db.StatusCritical {
		t.Errorf("status = %q, want %q", got.Status, db.StatusCritical)
	}
	if got.LastActionAt == nil || !got.LastActionAt.Equal(fixedNow) {
		t.Errorf("lastActionAt = %v, want %v", got.LastActionAt, fixedNow)
	}

	if len(m.data.ActionsLog) != 1 {
		t.Fatalf("actions = %d, want 1", len(m.data.ActionsLog))
	}
	a := m.data.ActionsLog[0]
	if a.Type != db.ActionUpdate || a.TaxpayerID != "T0003" || !a.At.Equal(fixedNow) {
		t.Errorf("action = %+v", a)
	}
	for _, k := range []string{"notes", "ifu", "status"} {
		if _, ok := a.Meta[k]; !ok {
			t.Errorf("action meta lacks %q: %v", k, a.Meta)
		}
	}

	if len(fs.triggers) != 1 {
		t.Fatalf("sync triggers = %d, want 1", len(fs.triggers))
	}
	if fs.triggers[0].Taxpayers[2].Notes != "Relance envoyée" {
		t.Error("sync should receive the edited dataset")
	}
	if m.flash != flashSaved {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestNewTaxpayer(t *testing.T) {
	m, fs := loadedModel(t, Options{})
	m = press(m, runes("n"))

	if len(m.data.Taxpayers) != store.SeedSize+1 {
		t.Fatalf("taxpayers = %d, want %d", len(m.data.Taxpayers), store.SeedSize+1)
	}
	tp := m.data.Taxpayers[0]
	if !regexp.MustCompile(`^T[0-9A-F]{8}$`).MatchString(tp.ID) {
		t.Errorf("id = %q, want T + 8 uppercase hex", tp.ID)
	}
	if tp.Name != "Nouveau contribuable" || tp.Sector != "Commerce" || tp.Type != "PME" {
		t.Errorf("new taxpayer = %+v", tp)
	}
	if tp.Segment != m.settings.Fallback() || tp.Status != db.StatusNormal {
		t.Errorf("segment/status = %q/%q", tp.Segment, tp.Status)
	}
	if tp.Debt != 0 || tp.Revenue != 0 || tp.AgeDays != 0 {
		t.Errorf("amounts should be zero: %+v", tp)
	}
	if len(fs.triggers) != 1 {
		t.Errorf("sync triggers = %d, want 1", len(fs.triggers))
	}
}

func TestSaveKeyFlashes(t *testing.T) {
	m, fs := loadedModel(t, Options{})
	updated, cmd := m.Update(runes("w"))
	model := updated.(Model)

	if model.flash != flashSaved {
		t.Errorf("flash = %q, want %q", model.flash, flashSaved)
	}
	if cmd == nil {
		t.Error("save should schedule clearing the flash")
	}
	if len(fs.triggers) != 1 {
		t.Errorf("sync triggers = %d, want 1", len(fs.triggers))
	}

	updated, _ = model.Update(ClearFlashMsg{})
	if updated.(Model).flash != "" {
		t.Error("flash should clear")
	}
}

func TestSyncFailureShown(t *testing.T) {
	m, _ := loadedModel(t, Options{})

	updated, cmd := m.Update(SyncResultMsg{Result: syncer.Result{At: fixedNow, Err: errors.New("chunk 0: disk full")}})
	model := updated.(Model)
	if !strings.HasPrefix(model.errorMessage, "sync failed") {
		t.Errorf("error = %q", model.errorMessage)
	}
	if cmd == nil {
		t.Error("should keep listening for results")
	}
	if !strings.Contains(model.View(), "sync failed") {
		t.Error("view should show the sync failure")
	}

	updated, _ = model.Update(SyncResultMsg{Result: syncer.Result{At: fixedNow}})
	model = updated.(Model)
	if model.errorMessage != "" {
		t.Errorf("successful sync should clear the failure, got %q", model.errorMessage)
	}
	if !model.lastSync.Equal(fixedNow) {
		t.Errorf("lastSync = %v", model.lastSync)
	}
}

func TestQuitFlushes(t *testing.T) {
	m, fs := loadedModel(t, Options{})
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	msg := cmd()
	if _, ok := msg.(flushedMsg); !ok {
		t.Fatalf("msg = %T, want flushedMsg", msg)
	}
	if fs.flushed != 1 {
		t.Errorf("flushed = %d, want 1", fs.flushed)
	}
	_, cmd = m.Update(msg)
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("flush should be followed by quit")
	}
}

func TestLoadErrorFallsBack(t *testing.T) {
	m := New(Options{Settings: settings.Defaults()})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated, _ = updated.(Model).Update(DataLoadedMsg{Data: testData(), Err: errors.New("connection refused")})
	model := updated.(Model)

	if !model.loaded {
		t.Fatal("model should use the fallback data")
	}
	if !strings.Contains(model.errorMessage, "connection refused") {
		t.Errorf("error = %q", model.errorMessage)
	}
}

func TestLoginFlow(t *testing.T) {
	fa := &fakeAuth{}
	m := New(Options{Settings: settings.Defaults(), Auth: fa})
	if m.authed || !m.checking {
		t.Fatal("remote mode should start by checking the session")
	}

	updated, _ := m.Update(SessionMsg{Active: false})
	m = updated.(Model)
	m = press(m, runes("agent@dgi.ga"), tea.KeyMsg{Type: tea.KeyTab}, runes("secret1"))

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("enter should sign in")
	}
	msg := cmd()
	if fa.email != "agent@dgi.ga" || fa.password != "secret1" {
		t.Errorf("sign in got %q/%q", fa.email, fa.password)
	}

	updated, cmd = m.Update(msg)
	m = updated.(Model)
	if !m.authed {
		t.Error("successful sign in should authorize")
	}
	if cmd != nil {
		t.Error("no loader configured, expected no load command")
	}
}

func TestLoginErrors(t *testing.T) {
	fa := &fakeAuth{signInErr: auth.ErrInvalidCredentials}
	m := New(Options{Settings: settings.Defaults(), Auth: fa})
	updated, _ := m.Update(SessionMsg{Active: false})
	m = updated.(Model)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if m.authed {
		t.Error("failed sign in should not authorize")
	}
	if m.loginError != auth.ErrInvalidCredentials.Error() {
		t.Errorf("loginError = %q", m.loginError)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	updated, _ = m.Update(cmd())
	m = updated.(Model)
	if m.loginInfo != signUpDone {
		t.Errorf("loginInfo = %q, want %q", m.loginInfo, signUpDone)
	}
	if m.loginError != "" {
		t.Errorf("loginError should clear, got %q", m.loginError)
	}
}

func TestSignOut(t *testing.T) {
	fa := &fakeAuth{}
	m, fs := loadedModel(t, Options{Auth: fa})
	m.authed = true

	_, cmd := m.Update(runes("o"))
	if cmd == nil {
		t.Fatal("o should sign out")
	}
	msg := cmd()
	if !fa.signedOut || fs.flushed != 1 {
		t.Errorf("signedOut=%v flushed=%d", fa.signedOut, fs.flushed)
	}
	updated, _ := m.Update(msg)
	model := updated.(Model)
	if model.authed || model.loaded {
		t.Error("sign out should return to the login screen")
	}
}

func TestReportExport(t *testing.T) {
	dir := t.TempDir()
	m, _ := loadedModel(t, Options{ExportDir: dir, CenterID: "OWENDO"})

	_, cmd := m.Update(runes("p"))
	if cmd != nil {
		t.Error("p outside the report view should do nothing")
	}

	m = press(m, runes("5"))
	_, cmd = m.Update(runes("p"))
	if cmd == nil {
		t.Fatal("p in the report view should export")
	}
	msg, ok := cmd().(ReportWrittenMsg)
	if !ok || msg.Err != nil {
		t.Fatalf("msg = %+v", msg)
	}
	if msg.Path != filepath.Join(dir, "FiscOps_Rapport_Owendo.pdf") {
		t.Errorf("path = %q", msg.Path)
	}
	if _, err := os.Stat(msg.Path); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestViewRendersDashboard(t *testing.T) {
	m, _ := loadedModel(t, Options{})
	out := m.View()
	for _, want := range []string{"FiscOps", "PRIORITÉS DU JOUR", "Portefeuille", "page 1/5", "Dettes critiques"} {
		if !strings.Contains(out, want) {
			t.Errorf("view lacks %q", want)
		}
	}

	for _, key := range []string{"2", "3", "4", "5"} {
		m = press(m, runes(key))
		if out := m.View(); out == "" {
			t.Errorf("view %s rendered nothing", key)
		}
	}
}

func TestViewBeforeSize(t *testing.T) {
	m := New(Options{Settings: settings.Defaults()})
	if got := m.View(); got != "Initialisation..." {
		t.Errorf("View() = %q", got)
	}
}
