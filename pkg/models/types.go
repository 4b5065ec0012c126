package models

import "time"

// TrackedDocument is one ledger row: a local file known to have been
// uploaded to the workspace in a prior run. LocalPath is the key; the
// ledger holds at most one record per path.
type TrackedDocument struct {
	LocalPath      string
	SyncedAt       time.Time // local mtime at last successful upload
	RemoteLocation string    // location assigned by the remote store
	Metadata       string    // verbatim upload response document, JSON
}

// DesiredFile is a file the scanner found this run. Recomputed every
// run, never persisted.
type DesiredFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// UploadResult is what the remote store reports for a stored document.
type UploadResult struct {
	Location string
	Metadata string
}
