// Package preflight provides readiness checks for the generator service and
// the filesystem paths docpipe writes to.
//
// These checks run in two contexts:
//   - `docpipe check` prints every result as a table.
//   - `docpipe serve` refuses to start when a directory check fails, so jobs
//     never discover an unwritable output root halfway through a run.
package preflight
