// Package retry provides the exponential-backoff policy shared by the
// generator transport layer and the pipeline stage layer.
//
// A Policy is a plain value: attempt budget, delay schedule, and a predicate
// selecting which errors are worth another attempt. The two layers differ only
// in the values they plug in, so a stage attempt that wraps a fully retried
// transport exchange composes naturally: the transport exhaustion error is one
// failed stage attempt.
package retry
