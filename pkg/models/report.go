package models

import "time"

// Report collects per-phase counters for one engine invocation.
type Report struct {
	Scanned int
	Skipped int

	Uploaded     int
	UploadErrors int

	Embedded    int
	EmbedErrors int

	Unembedded    int
	UnembedErrors int

	Unloaded     int
	UnloadErrors int

	// Purge mode only.
	PurgedEmbeddings int
	PurgedRaw        int

	Duration time.Duration
}
