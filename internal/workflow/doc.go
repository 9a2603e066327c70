// Package workflow drives a document through the fixed stage order.
//
// The Driver owns the pipeline state for the duration of a run. It enters a
// stage only after the previous one succeeded, feeds each handler the
// previous stage's validated output, checkpoints after every success, and
// halts at the first stage that fails terminally, writing a failed_<stage>
// snapshot.
//
// Two modes share that state machine:
//
//   - Run (blocking): re-invokes a failed stage under the stage retry policy,
//     sleeping the backoff between attempts.
//   - RunEvents (event-driven): offloads each attempt to a bounded Pool and
//     reports progress through a progress.Emitter. After a failure the
//     configured failure policy either waits and re-invokes the stage
//     ("retry") or waits through the whole backoff schedule and then reports
//     the failure ("report").
//
// Observers (run ledger, metrics) and emitters are notified best effort;
// their failures are logged and never change the outcome of a run.
package workflow
