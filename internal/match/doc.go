// Package match provides identifier tokenization, case conversion and
// Levenshtein-based name similarity.
//
// Key functions:
//   - TokenizeIdent: splits CamelCase / snake_case / kebab-case identifiers
//   - SnakeCase, CamelCase, Slug: case conversions used by transforms and
//     by foreign key naming defaults
//   - Levenshtein: computes edit distance between strings
//   - Suggest: picks the closest known name for "did you mean" diagnostics
package match
