// Package schema describes persistent entity types and their relations.
//
// Entity types come from two places:
//   - Go models implementing Model, probed once when the Registry is built
//   - declarations read from a YAML schema document (see ParseDocument)
//
// Both end up as immutable EntityType descriptors holding attributes and
// RelationDescriptor values keyed by relation name. Relation kinds are
// derived from the capabilities of the declared relation value (see
// ResolveRelationKind), never from its name.
package schema
