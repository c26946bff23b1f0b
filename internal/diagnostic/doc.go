// Package diagnostic provides structured errors, warnings and infos
// collected while a mapping document is validated against the entity
// schema.
//
// Key capabilities:
//   - Stable machine-readable codes per problem
//   - Entity and target path context
//   - "Did you mean" suggestions for misspelled names
package diagnostic
