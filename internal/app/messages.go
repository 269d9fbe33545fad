package app

import (
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/syncer"
)

// DataLoadedMsg carries the dataset read at start-up or after sign-in. When
// Err is set, Data holds the demo fallback.
type DataLoadedMsg struct {
	Data db.Dataset
	Err  error
}

// SyncResultMsg reports a completed background save.
type SyncResultMsg struct {
	Result syncer.Result
}

// SessionMsg reports whether a valid session exists.
type SessionMsg struct {
	Active bool
}

// AuthResultMsg is the outcome of a sign-in or sign-up attempt.
type AuthResultMsg struct {
	SignUp bool
	Err    error
}

// SignedOutMsg is sent once the session has been cleared.
type SignedOutMsg struct {
	Err error
}

// ReportWrittenMsg reports the PDF export.
type ReportWrittenMsg struct {
	Path string
	Err  error
}

// ClearFlashMsg clears the confirmation shown in the status bar.
type ClearFlashMsg struct{}

// flushedMsg is sent when pending edits are saved before quitting.
type flushedMsg struct{}
