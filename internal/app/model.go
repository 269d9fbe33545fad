package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/auth"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/report"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/settings"
	"github.com/lndambition2025-ops/fiscops/internal/store"
	"github.com/lndambition2025-ops/fiscops/internal/syncer"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	flashSaved       = "enregistré"
	syncFailedPrefix = "sync failed: "
	signUpDone       = "Compte créé. Connecte-toi."
	flushTimeout     = 10 * time.Second
)

// Sync is the part of the syncer the dashboard drives.
type Sync interface {
	Trigger(ds db.Dataset)
	Flush(ctx context.Context)
	Results() <-chan syncer.Result
}

// Options configures a Model.
type Options struct {
	Settings settings.Settings
	Mode     store.Mode
	CenterID string
	// Load reads the dataset. On error it still returns usable data.
	Load      func(ctx context.Context) (db.Dataset, error)
	Sync      Sync
	Auth      auth.Provider // nil skips the login screen
	ExportDir string
	Now       func() time.Time
	Log       *zap.Logger
}

// Model is the root bubbletea model for the FiscOps dashboard.
type Model struct {
	settings  settings.Settings
	mode      store.Mode
	centerID  string
	load      func(ctx context.Context) (db.Dataset, error)
	sync      Sync
	auth      auth.Provider
	exportDir string
	now       func() time.Time
	log       *zap.Logger

	// Dataset
	data   db.Dataset
	loaded bool

	state State

	// Search
	search    textinput.Model
	searching bool

	// Dossier overlay
	notes        textarea.Model
	draftSegment string
	draftStatus  string

	// Login
	authed     bool
	checking   bool
	email      textinput.Model
	password   textinput.Model
	loginFocus int
	loginError string
	loginInfo  string

	// UI state
	width        int
	height       int
	flash        string
	errorMessage string
	lastSync     time.Time
}

// New creates a Model. The dataset is read by Init.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "Rechercher (nom, secteur, type)"
	search.CharLimit = 80

	notes := textarea.New()
	notes.Placeholder = "Notes"
	notes.ShowLineNumbers = false
	notes.SetHeight(4)
	notes.SetWidth(60)

	email := textinput.New()
	email.Prompt = "Email      "
	email.Placeholder = "agent@dgi.ga"
	email.CharLimit = 120

	password := textinput.New()
	password.Prompt = "Mot de passe "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 72

	return Model{
		settings:  opts.Settings,
		mode:      opts.Mode,
		centerID:  opts.CenterID,
		load:      opts.Load,
		sync:      opts.Sync,
		auth:      opts.Auth,
		exportDir: opts.ExportDir,
		now:       opts.Now,
		log:       opts.Log,
		state:     NewState(),
		search:    search,
		notes:     notes,
		email:     email,
		password:  password,
		authed:    opts.Auth == nil,
		checking:  opts.Auth != nil,
	}
}

// Init starts listening for sync results and either loads the dataset or
// checks for an existing session.
func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.sync != nil {
		cmds = append(cmds, listenCmd(m.sync.Results()))
	}
	if m.auth != nil {
		cmds = append(cmds, sessionCmd(m.auth))
	} else {
		cmds = append(cmds, loadCmd(m.load))
	}
	return tea.Batch(cmds...)
}

// loadCmd reads the dataset in the background.
func loadCmd(load func(context.Context) (db.Dataset, error)) tea.Cmd {
	if load == nil {
		return nil
	}
	return func() tea.Msg {
		ds, err := load(context.Background())
		return DataLoadedMsg{Data: ds, Err: err}
	}
}

// listenCmd waits for the next sync result.
func listenCmd(results <-chan syncer.Result) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-results
		if !ok {
			return nil
		}
		return SyncResultMsg{Result: r}
	}
}

// sessionCmd checks for a valid stored session.
func sessionCmd(p auth.Provider) tea.Cmd {
	return func() tea.Msg {
		_, err := p.Session(context.Background())
		return SessionMsg{Active: err == nil}
	}
}

func signInCmd(p auth.Provider, email, password string) tea.Cmd {
	return func() tea.Msg {
		return AuthResultMsg{Err: p.SignIn(context.Background(), email, password)}
	}
}

func signUpCmd(p auth.Provider, email, password string) tea.Cmd {
	return func() tea.Msg {
		return AuthResultMsg{SignUp: true, Err: p.SignUp(context.Background(), email, password)}
	}
}

// signOutCmd saves pending edits before clearing the session.
func signOutCmd(p auth.Provider, s Sync) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if s != nil {
			s.Flush(ctx)
		}
		return SignedOutMsg{Err: p.SignOut(ctx)}
	}
}

// writeReportCmd renders the PDF into dir.
func writeReportCmd(dir, centerID string, doc report.Document) tea.Cmd {
	return func() tea.Msg {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ReportWrittenMsg{Err: err}
		}
		path := filepath.Join(dir, report.Filename(centerID))
		f, err := os.Create(path)
		if err != nil {
			return ReportWrittenMsg{Err: err}
		}
		if err := report.WritePDF(f, doc); err != nil {
			f.Close()
			return ReportWrittenMsg{Err: err}
		}
		if err := f.Close(); err != nil {
			return ReportWrittenMsg{Err: err}
		}
		return ReportWrittenMsg{Path: path}
	}
}

// clearFlashCmd fires after a delay to clear the confirmation text.
func clearFlashCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return ClearFlashMsg{}
	})
}

// quitCmd flushes pending edits, then quits.
func (m Model) quitCmd() tea.Cmd {
	if m.sync == nil {
		return tea.Quit
	}
	s := m.sync
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		s.Flush(ctx)
		return flushedMsg{}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.notes.SetWidth(max(20, min(70, msg.Width-12)))
		return m, nil

	case DataLoadedMsg:
		m.data = msg.Data
		m.data.Normalize()
		m.loaded = true
		if msg.Err != nil {
			m.errorMessage = "Chargement impossible, données de démonstration : " + msg.Err.Error()
		}
		m.clamp()
		return m, nil

	case SyncResultMsg:
		if msg.Result.Err != nil {
			m.errorMessage = syncFailedPrefix + msg.Result.Err.Error()
		} else {
			m.lastSync = msg.Result.At
			if strings.HasPrefix(m.errorMessage, syncFailedPrefix) {
				m.errorMessage = ""
			}
		}
		return m, listenCmd(m.sync.Results())

	case SessionMsg:
		m.checking = false
		if msg.Active {
			m.authed = true
			return m, loadCmd(m.load)
		}
		m.loginFocus = 0
		cmd := m.email.Focus()
		return m, cmd

	case AuthResultMsg:
		m.password.Reset()
		if msg.Err != nil {
			m.loginError = msg.Err.Error()
			m.loginInfo = ""
			return m, nil
		}
		m.loginError = ""
		if msg.SignUp {
			m.loginInfo = signUpDone
			return m, nil
		}
		m.loginInfo = ""
		m.authed = true
		m.email.Blur()
		m.password.Blur()
		return m, loadCmd(m.load)

	case SignedOutMsg:
		if msg.Err != nil {
			m.log.Warn("sign out failed", zap.Error(msg.Err))
		}
		m.authed = false
		m.loaded = false
		m.data = db.Dataset{}
		m.state = NewState()
		m.errorMessage = ""
		m.loginFocus = 0
		m.password.Blur()
		cmd := m.email.Focus()
		return m, cmd

	case ReportWrittenMsg:
		if msg.Err != nil {
			m.errorMessage = "Export PDF impossible : " + msg.Err.Error()
			return m, nil
		}
		m.flash = "PDF écrit : " + msg.Path
		return m, clearFlashCmd()

	case ClearFlashMsg:
		m.flash = ""
		return m, nil

	case flushedMsg:
		return m, tea.Quit
	}

	// Cursor blink and other component messages.
	var cmd tea.Cmd
	switch {
	case !m.authed:
		if m.loginFocus == 0 {
			m.email, cmd = m.email.Update(msg)
		} else {
			m.password, cmd = m.password.Update(msg)
		}
	case m.state.OpenID != "":
		m.notes, cmd = m.notes.Update(msg)
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	}
	return m, cmd
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m, m.quitCmd()
	}
	switch {
	case !m.authed:
		return m.handleLoginKey(msg)
	case !m.loaded:
		if msg.String() == KeyQuit {
			return m, m.quitCmd()
		}
		return m, nil
	case m.state.OpenID != "":
		return m.handleOverlayKey(msg)
	case m.searching:
		return m.handleSearchKey(msg)
	}

	pageSize := m.settings.UI.PageSize
	filtered := Filter(m.data.Taxpayers, m.state)

	switch k := msg.String(); k {
	case KeyQuit:
		return m, m.quitCmd()

	case KeyViewPortfolio, KeyViewSegments, KeyViewPlan, KeyViewSegmentTotals, KeyViewReport:
		m.state = m.state.WithView(viewKeys[k])

	case KeySearch:
		m.searching = true
		m.search.SetValue(m.state.Query)
		m.search.CursorEnd()
		cmd := m.search.Focus()
		return m, cmd

	case KeySegment:
		m.state = m.state.CycleSegment(m.settings.SegmentNames)

	case KeyStatus:
		m.state = m.state.CycleStatus()

	case KeyPrevPage, KeyLeft:
		m.state = m.state.PrevPage()

	case KeyNextPage, KeyRight:
		m.state = m.state.NextPage(len(filtered), pageSize)

	case KeyJ, KeyDown:
		m.state = m.state.MoveCursor(1, rowsOnPage(len(filtered), pageSize, m.state.Page))

	case KeyK, KeyUp:
		m.state = m.state.MoveCursor(-1, rowsOnPage(len(filtered), pageSize, m.state.Page))

	case KeyEnter:
		if m.state.View != ViewPortfolio {
			return m, nil
		}
		rows, _ := Paginate(filtered, m.state.Page, pageSize)
		if m.state.Cursor < len(rows) {
			return m.openDossier(rows[m.state.Cursor].ID)
		}

	case KeyNew:
		m.newTaxpayer()

	case KeySave:
		m.triggerSync()
		m.flash = flashSaved
		return m, clearFlashCmd()

	case KeyPDF:
		if m.state.View == ViewReport {
			return m, writeReportCmd(m.exportDir, m.centerID, m.reportDocument())
		}

	case KeySignOut:
		if m.auth != nil {
			return m, signOutCmd(m.auth, m.sync)
		}
	}

	m.clamp()
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	case KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.Reset()
		m.state = m.state.WithQuery("")
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != m.state.Query {
		m.state = m.state.WithQuery(v)
	}
	return m, cmd
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.state = m.state.CloseDossier()
		m.notes.Blur()
		return m, nil
	case KeyTab:
		m.draftSegment = cycle(m.settings.SegmentNames, m.draftSegment)
		return m, nil
	case KeyShiftTab:
		m.draftStatus = cycle(db.Statuses, m.draftStatus)
		return m, nil
	case KeyCommit:
		m.commitDossier()
		m.clamp()
		return m, clearFlashCmd()
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.checking {
		return m, nil
	}
	switch msg.String() {
	case KeyTab, KeyShiftTab, KeyUp, KeyDown:
		m.loginFocus = 1 - m.loginFocus
		var cmd tea.Cmd
		if m.loginFocus == 0 {
			m.password.Blur()
			cmd = m.email.Focus()
		} else {
			m.email.Blur()
			cmd = m.password.Focus()
		}
		return m, cmd
	case KeyEnter:
		return m, signInCmd(m.auth, m.email.Value(), m.password.Value())
	case KeySignUp:
		return m, signUpCmd(m.auth, m.email.Value(), m.password.Value())
	}
	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

// openDossier shows the overlay for id with its current values as draft.
func (m Model) openDossier(id string) (tea.Model, tea.Cmd) {
	i := m.data.Find(id)
	if i < 0 {
		return m, nil
	}
	t := m.data.Taxpayers[i]
	m.state = m.state.Open(id)
	m.draftSegment = t.Segment
	m.draftStatus = t.StatusOrDefault()
	m.notes.SetValue(t.Notes)
	cmd := m.notes.Focus()
	return m, cmd
}

// commitDossier applies the overlay draft, logs an update action and
// schedules a save.
func (m *Model) commitDossier() {
	i := m.data.Find(m.state.OpenID)
	m.state = m.state.CloseDossier()
	m.notes.Blur()
	if i < 0 {
		return
	}
	t := &m.data.Taxpayers[i]
	now := m.now()

	meta := map[string]any{}
	if notes := m.notes.Value(); notes != t.Notes {
		meta["notes"] = notes
		t.Notes = notes
	}
	if m.draftSegment != t.Segment {
		meta["ifu"] = m.draftSegment
		t.Segment = m.draftSegment
	}
	if m.draftStatus != t.StatusOrDefault() {
		meta["status"] = m.draftStatus
	}
	t.Status = m.draftStatus
	t.LastActionAt = &now

	m.data.ActionsLog = append(m.data.ActionsLog, db.Action{
		ID:         uuid.NewString(),
		Type:       db.ActionUpdate,
		TaxpayerID: t.ID,
		At:         now,
		Meta:       meta,
	})
	m.triggerSync()
	m.flash = flashSaved
}

// newTaxpayer puts a blank dossier at the head of the portfolio.
func (m *Model) newTaxpayer() {
	t := db.Taxpayer{
		ID:      "T" + strings.ToUpper(uuid.NewString()[:8]),
		Name:    "Nouveau contribuable",
		Sector:  "Commerce",
		Type:    "PME",
		Status:  db.StatusNormal,
		Segment: m.settings.Fallback(),
	}
	m.data.Taxpayers = append([]db.Taxpayer{t}, m.data.Taxpayers...)
	m.triggerSync()
}

func (m *Model) triggerSync() {
	if m.sync != nil {
		m.sync.Trigger(m.data)
	}
}

func (m *Model) clamp() {
	total := len(Filter(m.data.Taxpayers, m.state))
	m.state = m.state.Clamp(total, m.settings.UI.PageSize)
}

func (m Model) reportDocument() report.Document {
	totals := scoring.ComputeTotals(m.data.Taxpayers, m.settings.Thresholds)
	pr := scoring.TopPriorities(m.data.Taxpayers, m.settings.Index, scoring.DefaultTopN)
	return report.Build(m.settings, totals, pr)
}

// State returns the navigation state.
func (m Model) State() State { return m.state }

// Dataset returns the dataset shown by the dashboard.
func (m Model) Dataset() db.Dataset { return m.data }

func (m Model) modeLabel() string {
	if m.mode == store.ModeRemote {
		return fmt.Sprintf("distant • %s", m.centerID)
	}
	return "local"
}
