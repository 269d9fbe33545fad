// Package db holds the FiscOps record types and the relational store that
// backs remote mode. Every row is scoped by a center identifier.
package db

import (
	"time"

	json "github.com/goccy/go-json"
)

// Taxpayer statuses.
const (
	StatusNormal   = "Normal"
	StatusCritical = "Critique"
	StatusOngoing  = "En cours"
	StatusPaid     = "Payé"
)

// Statuses lists the taxpayer statuses in display order.
var Statuses = []string{StatusNormal, StatusCritical, StatusOngoing, StatusPaid}

// ActionUpdate is the action type logged when a dossier is edited.
const ActionUpdate = "update"

// Taxpayer is one dossier of the portfolio. JSON names match the persisted
// local blob.
type Taxpayer struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Sector       string     `json:"sector"`
	Type         string     `json:"type"`
	Revenue      float64    `json:"ca"`
	Debt         float64    `json:"debt"`
	AgeDays      int        `json:"ageDays"`
	Status       string     `json:"status"`
	Segment      string     `json:"ifu"`
	Notes        string     `json:"notes"`
	LastActionAt *time.Time `json:"lastActionAt"`
}

// StatusOrDefault returns the status, treating an empty one as Normal.
func (t Taxpayer) StatusOrDefault() string {
	if t.Status == "" {
		return StatusNormal
	}
	return t.Status
}

// Action is an append-only log entry.
type Action struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TaxpayerID string         `json:"taxpayerId"`
	At         time.Time      `json:"at"`
	Meta       map[string]any `json:"meta"`
}

// Dataset is everything persisted for one center.
type Dataset struct {
	Taxpayers  []Taxpayer      `json:"taxpayers"`
	ActionsLog []Action        `json:"actionsLog"`
	WeekPlan   json.RawMessage `json:"weekPlan"`
}

// EmptyWeekPlan is the week plan of a fresh dataset.
var EmptyWeekPlan = json.RawMessage(`{}`)

// Normalize replaces nil collections with empty ones so the dataset
// serialises to the same shape whatever its origin.
func (d *Dataset) Normalize() {
	if d.Taxpayers == nil {
		d.Taxpayers = []Taxpayer{}
	}
	if d.ActionsLog == nil {
		d.ActionsLog = []Action{}
	}
	if len(d.WeekPlan) == 0 || string(d.WeekPlan) == "null" {
		d.WeekPlan = append(json.RawMessage(nil), EmptyWeekPlan...)
	}
}

// Clone returns a deep copy that shares nothing mutable with d.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Taxpayers:  make([]Taxpayer, len(d.Taxpayers)),
		ActionsLog: make([]Action, len(d.ActionsLog)),
		WeekPlan:   append(json.RawMessage(nil), d.WeekPlan...),
	}
	for i, t := range d.Taxpayers {
		if t.LastActionAt != nil {
			at := *t.LastActionAt
			t.LastActionAt = &at
		}
		out.Taxpayers[i] = t
	}
	for i, a := range d.ActionsLog {
		if a.Meta != nil {
			meta := make(map[string]any, len(a.Meta))
			for k, v := range a.Meta {
				meta[k] = v
			}
			a.Meta = meta
		}
		out.ActionsLog[i] = a
	}
	return out
}

// Find returns the index of the taxpayer with id, or -1.
func (d Dataset) Find(id string) int {
	for i, t := range d.Taxpayers {
		if t.ID == id {
			return i
		}
	}
	return -1
}
