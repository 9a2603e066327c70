// Package server exposes event-driven pipeline runs over HTTP.
//
// Each POST /api/jobs starts a run in the background with its own progress
// hub. Clients follow a job by long-polling its events endpoint with the last
// sequence they saw; the hub closes after the terminal complete/error event.
// All jobs share the runtime's worker pool, so the configured worker count
// bounds concurrent generator exchanges across jobs.
package server
