// Package state holds the PipelineState aggregate threaded through every
// stage of a run, together with the fixed stage order and the checkpoint
// file naming that goes with it.
//
// A State has exactly one writer, the driver that owns the run. Observers
// receive derived summaries, never the live value.
package state
