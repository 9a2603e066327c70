// Package extract recovers structured objects from generator text.
//
// Two policies are supported. Simple strips one fenced-code wrapper and parses
// strictly. Repair runs a fixed chain of text passes first (fence stripping,
// comment removal, separator cleanup, dangling-key removal, quote
// normalization), then falls back to the first outermost brace span. Every
// pass is a pure string transform that leaves JSON string literals untouched,
// so already-valid input parses to the same value under either policy.
//
// Extraction never fails with an error. Input that cannot be recovered yields
// a Result whose Unrecoverable method reports true; callers turn that into a
// malformed-output stage failure.
package extract
