// Package stages defines the four pipeline stage handlers.
//
// A Handler knows its model, instruction, extraction policy, output schema,
// and how to derive its input from the previous stage's validated output.
// Execute performs one attempt: generate, extract, validate, decode. It never
// mutates the pipeline state; the workflow driver records the output.
//
//	segment        raw_text                   Simple policy
//	normalize      segment.extracted_fields   Simple policy
//	map-to-schema  normalize.normalized_data  Repair policy
//	review         map-to-schema output       Simple policy
//
// RenderReviewReport renders the human-readable review document.
package stages
