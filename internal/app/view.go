package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/ui"
)

// recentActions caps the journal shown in the week plan view.
const recentActions = 12

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initialisation..."
	}
	if !m.authed {
		return m.renderLogin()
	}
	if !m.loaded {
		return ui.DimStyle.Render("Chargement des données...")
	}

	totals := scoring.ComputeTotals(m.data.Taxpayers, m.settings.Thresholds)
	pr := scoring.TopPriorities(m.data.Taxpayers, m.settings.Index, scoring.DefaultTopN)

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderNav())
	sections = append(sections, m.renderKPIs(totals))
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent(pr))
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("▲ FiscOps") + "  " + ui.PanelTitleStyle.Render("Ce mois")
	sub := ui.SubtitleStyle.Render("  " + m.settings.CenterName + " • " + m.settings.PeriodLabel)
	mode := ui.DimStyle.Render("  [" + m.modeLabel() + "]")
	return title + sub + mode
}

func (m Model) renderNav() string {
	var tabs []string
	for i, v := range Views {
		label := fmt.Sprintf("%d %s", i+1, v)
		if v == m.state.View {
			tabs = append(tabs, ui.TabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, ui.TabStyle.Render(label))
		}
	}
	return strings.Join(tabs, " ")
}

func (m Model) renderKPIs(totals scoring.Totals) string {
	boxW := max(20, (m.width-6)/3)
	pct := scoring.PctObjective(totals.Recovered, m.settings.Objective)
	recovered := ui.KPILabelStyle.Render(fmt.Sprintf("Recouvrement total (obj : %s)", ui.Compact(m.settings.Objective))) + "\n" +
		ui.KPIValueStyle.Render(ui.FCFA(totals.Recovered)) + "\n" +
		ui.DimStyle.Render(ui.Bar(pct, max(4, boxW-14))+" "+ui.Percent(pct))
	debt := ui.KPILabelStyle.Render("Dette totale") + "\n" +
		ui.KPIValueStyle.Render(ui.FCFA(totals.DebtTotal)) + "\n" +
		ui.DimStyle.Render("Ratio dette/CA "+ui.Percent(totals.Ratio))
	crit := ui.KPILabelStyle.Render("Dettes critiques") + "\n" +
		ui.CriticalStyle.Render(fmt.Sprintf("%d", totals.Critical)) + "\n" +
		ui.DimStyle.Render(fmt.Sprintf("sur %d dossiers", len(m.data.Taxpayers)))

	box := ui.KPIBoxStyle.Width(boxW)
	return lipgloss.JoinHorizontal(lipgloss.Top, box.Render(recovered), box.Render(debt), box.Render(crit))
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + nav(1) + kpis(5) + dividers(2) + error(1) + status(1) + footer(1)
	reserved := 12
	return max(8, m.height-reserved)
}

func (m Model) priorityPanelWidth() int {
	return max(30, m.width*35/100)
}

func (m Model) viewPanelWidth() int {
	return max(40, m.width-m.priorityPanelWidth()-3)
}

func (m Model) renderMainContent(pr scoring.Priorities) string {
	contentH := m.contentHeight()
	if m.state.OpenID != "" {
		return lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.renderDossier())
	}

	viewW := m.viewPanelWidth()
	prioW := m.priorityPanelWidth()
	left := strings.Split(m.renderView(viewW, contentH), "\n")
	right := strings.Split(m.renderPriorities(pr, prioW, contentH), "\n")

	divider := ui.DividerStyle.Render(" │ ")
	var rows []string
	for i := 0; i < contentH; i++ {
		l, r := "", ""
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		rows = append(rows, padRight(fit(l, viewW), viewW)+divider+r)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderPriorities(pr scoring.Priorities, width, height int) string {
	lines := []string{
		ui.PanelTitleStyle.Render("📌 PRIORITÉS DU JOUR"),
		ui.DimStyle.Render(fmt.Sprintf("Impact : +%s (%s)", ui.FCFA(pr.Impact), ui.Percent(scoring.PctObjective(pr.Impact, m.settings.Objective)))),
		ui.DimStyle.Render(fmt.Sprintf("%d dossiers à traiter immédiatement", len(pr.Top))),
		"",
	}
	nameW := max(8, width-20)
	for _, p := range pr.Top {
		idx := ui.IndexStyle(p.Index, m.settings.Thresholds.ImmediateIndex).Render(fmt.Sprintf("%3d", p.Index))
		line := col(p.Taxpayer.Name, nameW) + " " + rcol(ui.Compact(p.Taxpayer.Debt), 10) + " " + idx
		lines = append(lines, line)
	}
	return clipLines(lines, width, height)
}

func (m Model) renderView(width, height int) string {
	switch m.state.View {
	case ViewSegments:
		return m.renderSegments(width, height)
	case ViewPlan:
		return m.renderPlan(width, height)
	case ViewSegmentTotals:
		return m.renderSegmentTotals(width, height)
	case ViewReport:
		return m.renderReport(width, height)
	}
	return m.renderPortfolio(width, height)
}

func (m Model) renderPortfolio(width, height int) string {
	filtered := Filter(m.data.Taxpayers, m.state)
	pageSize := m.settings.UI.PageSize
	rows, page := Paginate(filtered, m.state.Page, pageSize)
	pages := PageCount(len(filtered), pageSize)

	var lines []string
	lines = append(lines, ui.PanelTitleStyle.Render("Portefeuille")+
		ui.DimStyle.Render(fmt.Sprintf("  %d dossiers • page %d/%d", len(filtered), page, pages)))
	lines = append(lines, m.renderFilters())

	nameW := max(10, width-76)
	header := col("Contribuable", nameW) + " " + col("Secteur", 12) + " " + col("IFU", 6) + " " +
		rcol("CA", 10) + " " + rcol("Montant dû", 10) + " " + rcol("Anc.", 6) + " " + rcol("Indice", 6) + " " + col("Statut", 9)
	lines = append(lines, ui.DimStyle.Render(header))

	if len(rows) == 0 {
		lines = append(lines, ui.DimStyle.Render("  Aucun dossier ne correspond aux filtres."))
	}
	for i, t := range rows {
		idx := scoring.DecisionIndex(t, m.settings.Index)
		line := col(t.Name, nameW) + " " + col(t.Sector, 12) + " " + col(t.Segment, 6) + " " +
			rcol(ui.Compact(t.Revenue), 10) + " " + rcol(ui.Compact(t.Debt), 10) + " " +
			rcol(fmt.Sprintf("%d j", t.AgeDays), 6) + " " + rcol(fmt.Sprintf("%d", idx), 6) + " "
		status := ui.StatusStyle(t.StatusOrDefault()).Render(col(t.StatusOrDefault(), 9))
		if i == m.state.Cursor {
			lines = append(lines, ui.SelectedStyle.Render("> "+line)+status)
		} else {
			lines = append(lines, "  "+line+status)
		}
	}
	lines = append(lines, "")
	lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("Objectif : %s • réf. : %s", ui.Compact(m.settings.Objective), ui.FCFA(m.settings.Reference.Total))))
	return clipLines(lines, width, height)
}

func (m Model) renderFilters() string {
	query := m.state.Query
	if m.searching {
		query = m.search.View()
	} else if query == "" {
		query = ui.DimStyle.Render("/ rechercher")
	} else {
		query = "/ " + query
	}
	return query + ui.DimStyle.Render("  IFU: ") + m.state.Segment + ui.DimStyle.Render("  Statut: ") + m.state.Status
}

func (m Model) renderSegments(width, height int) string {
	lines := []string{ui.PanelTitleStyle.Render("Segments"), ""}
	for _, name := range m.settings.SegmentNames {
		def := m.settings.Segments[name]
		ref := m.settings.Reference.SegmentTotals[name]
		lines = append(lines, ui.SelectedStyle.Render(name)+" "+def.Label)
		lines = append(lines, ui.DimStyle.Render("  Secteurs : "+strings.Join(def.Sectors, ", ")))
		lines = append(lines, ui.DimStyle.Render("  Réf. : "+ui.FCFA(ref)))
	}
	lines = append(lines, "")
	lines = append(lines, ui.DimStyle.Render(fmt.Sprintf("Réf. spontané : %s • AMR : %s",
		ui.Compact(m.settings.Reference.Spontaneous), ui.Compact(m.settings.Reference.Enforced))))
	return clipLines(lines, width, height)
}

func (m Model) renderPlan(width, height int) string {
	lines := []string{
		ui.PanelTitleStyle.Render("Plan semaine"),
		ui.DimStyle.Render("Plan semaine (phase test) : à activer avec le module actions."),
		"",
		ui.PanelTitleStyle.Render("Dernières actions"),
	}
	actions := append([]db.Action(nil), m.data.ActionsLog...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At.After(actions[j].At) })
	if len(actions) == 0 {
		lines = append(lines, ui.DimStyle.Render("  Aucune action enregistrée."))
	}
	for i, a := range actions {
		if i == recentActions {
			break
		}
		name := a.TaxpayerID
		if j := m.data.Find(a.TaxpayerID); j >= 0 {
			name = m.data.Taxpayers[j].Name
		}
		lines = append(lines, fmt.Sprintf("  %s  %s  %s %s",
			ui.DimStyle.Render(a.At.Local().Format("02/01 15:04")), a.Type, name, ui.DimStyle.Render(describeMeta(a.Meta))))
	}
	return clipLines(lines, width, height)
}

func describeMeta(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (m Model) renderSegmentTotals(width, height int) string {
	lines := []string{
		ui.PanelTitleStyle.Render("IFU"),
		ui.DimStyle.Render("Périmètres sectoriels " + m.settings.CenterName),
		"",
		ui.DimStyle.Render(col("IFU", 8) + " " + rcol("Dossiers", 8) + " " + rcol("Dette", 18) + " " + rcol("% obj", 8) + " " + rcol("Critiques", 9)),
	}
	for _, s := range scoring.SegmentSummaries(m.data.Taxpayers, m.settings) {
		lines = append(lines, col(s.Segment, 8)+" "+rcol(fmt.Sprintf("%d", s.Count), 8)+" "+
			rcol(ui.FCFA(s.Debt), 18)+" "+rcol(ui.Percent(scoring.PctObjective(s.Debt, m.settings.Objective)), 8)+" "+
			rcol(fmt.Sprintf("%d", s.Critical), 9))
		lines = append(lines, ui.DimStyle.Render("  "+s.Label))
	}
	return clipLines(lines, width, height)
}

func (m Model) renderReport(width, height int) string {
	lines := []string{
		ui.PanelTitleStyle.Render("Rapport 1 page") + ui.DimStyle.Render("  (p : générer le PDF)"),
		"",
	}
	for _, l := range m.reportDocument().Lines() {
		lines = append(lines, wrapText(l, width)...)
	}
	return clipLines(lines, width, height)
}

func (m Model) renderDossier() string {
	i := m.data.Find(m.state.OpenID)
	if i < 0 {
		return ""
	}
	t := m.data.Taxpayers[i]
	idx := scoring.DecisionIndex(t, m.settings.Index)
	rec := scoring.Recommendation(idx, m.settings.Thresholds)
	badge := ui.StandardBadgeStyle.Render(rec)
	if idx >= m.settings.Thresholds.ImmediateIndex {
		badge = ui.ImmediateBadgeStyle.Render(rec)
	}

	lines := []string{
		ui.TitleStyle.Render(t.Name) + ui.DimStyle.Render("  "+t.ID),
		ui.DimStyle.Render(t.Sector + " • " + t.Type + " • " + t.Segment),
		"",
		fmt.Sprintf("CA %s   Montant dû %s   Ancienneté %d jours", ui.FCFA(t.Revenue), ui.FCFA(t.Debt), t.AgeDays),
		"",
		ui.PanelTitleStyle.Render(fmt.Sprintf("Indice de décision : %d / 100", idx)) + "  " + badge,
		ui.DimStyle.Render("Contribution à l'objectif : " + ui.Percent(scoring.PctObjective(t.Debt, m.settings.Objective))),
		"",
		ui.KPILabelStyle.Render("Notes"),
		m.notes.View(),
		"",
		ui.KPILabelStyle.Render("IFU ") + ui.SelectedStyle.Render(m.draftSegment) +
			ui.KPILabelStyle.Render("   Statut ") + ui.StatusStyle(m.draftStatus).Render(m.draftStatus),
		"",
		ui.FooterKeyStyle.Render("tab") + ui.FooterDescStyle.Render(" IFU  ") +
			ui.FooterKeyStyle.Render("shift+tab") + ui.FooterDescStyle.Render(" Statut  ") +
			ui.FooterKeyStyle.Render("ctrl+s") + ui.FooterDescStyle.Render(" Enregistrer  ") +
			ui.FooterKeyStyle.Render("esc") + ui.FooterDescStyle.Render(" Fermer"),
	}
	return ui.OverlayStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderLogin() string {
	lines := []string{
		ui.TitleStyle.Render("▲ FiscOps") + ui.DimStyle.Render("  connexion"),
		"",
	}
	if m.checking {
		lines = append(lines, ui.DimStyle.Render("Vérification de la session..."))
	} else {
		lines = append(lines, m.email.View(), m.password.View(), "")
		if m.loginError != "" {
			lines = append(lines, ui.ErrorTextStyle.Render(m.loginError))
		}
		if m.loginInfo != "" {
			lines = append(lines, ui.FlashStyle.Render(m.loginInfo))
		}
		lines = append(lines, "",
			ui.FooterKeyStyle.Render("enter")+ui.FooterDescStyle.Render(" Se connecter  ")+
				ui.FooterKeyStyle.Render("ctrl+n")+ui.FooterDescStyle.Render(" Créer un compte  ")+
				ui.FooterKeyStyle.Render("ctrl+c")+ui.FooterDescStyle.Render(" Quitter"))
	}
	box := ui.LoginBoxStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, max(m.height, lipgloss.Height(box)), lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Erreur : ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.flash != "" {
		parts = append(parts, ui.FlashStyle.Render("✓ "+m.flash))
	}
	if !m.lastSync.IsZero() {
		parts = append(parts, ui.DimStyle.Render("synchronisé "+m.lastSync.Local().Format("15:04:05")))
	}
	if len(parts) == 0 {
		return ui.DimStyle.Render(fmt.Sprintf("%d contribuables", len(m.data.Taxpayers)))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}
	var parts []string
	if m.searching {
		parts = append(parts, key("enter", "Valider"), key("esc", "Effacer"))
		return strings.Join(parts, "  ")
	}
	parts = append(parts, key("1-5", "Vue"))
	if m.state.View == ViewPortfolio {
		parts = append(parts, key("/", "Chercher"), key("s", "IFU"), key("f", "Statut"),
			key("←→", "Page"), key("j/k", "Nav"), key("enter", "Dossier"))
	}
	if m.state.View == ViewReport {
		parts = append(parts, key("p", "PDF"))
	}
	parts = append(parts, key("n", "Nouveau"), key("w", "Enregistrer"))
	if m.auth != nil {
		parts = append(parts, key("o", "Déconnexion"))
	}
	parts = append(parts, key("q", "Quitter"))
	return strings.Join(parts, "  ")
}

// Helpers

func col(s string, width int) string {
	return padRight(truncateToWidth(s, width), width)
}

func rcol(s string, width int) string {
	s = truncateToWidth(s, width)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return strings.Repeat(" ", width-visible) + s
}

func clipLines(lines []string, width, height int) string {
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = fit(l, width)
	}
	return strings.Join(lines, "\n")
}

// fit cuts a possibly styled line to width cells.
func fit(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 && width > 0 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len([]rune(current))+1+len([]rune(word)) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
