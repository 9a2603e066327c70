// Package records defines the typed outputs of each pipeline stage, the JSON
// schemas used to validate generator output before decoding, and the static
// domain definition (section types, table layouts, currency codes) that stages
// describe to the generator.
package records
