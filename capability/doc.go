// Package capability implements the catalog and the safe execution layer for
// named capabilities (skills) an agent can invoke: a Registry holding
// immutable descriptors with schema metadata, and a Gateway that executes a
// capability by name with argument validation, human confirmation for
// irreversible actions and an append-only audit trail.
//
// Capability providers contribute descriptors + implementations through the
// Provider interface; a startup routine aggregates the enabled providers into
// the Registry. Registration is explicit, with no runtime reflection.
package capability
