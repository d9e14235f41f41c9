// Package core provides the business logic for bulk spreadsheet imports.
//
// This package holds all import domain logic independent of any UI or
// transport layer. It is used by the web handlers, the importctl CLI and
// tests without modification. Storage, file decoding and assisted mapping are
// reached through small interfaces (see ports.go) so that each can be swapped
// or faked.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Field Catalog: Registered per entity type, each definition has field
//     specs, synonyms, a natural key and a typed record builder.
//   - Column Mapping: Source column -> target field, resolved in layers
//     (deterministic, assisted, profile, operator overrides).
//   - Preview: Every row classified as valid, warning or invalid.
//   - Persistence: Chunked commit with bulk transactions and per-row fallback.
//   - Progress: One status stream per commit, terminal exactly once.
//
// # Entity Registry
//
// Entities are registered at init time using [Register]:
//
//	core.Register(core.EntityDefinition{
//	    Info: core.EntityInfo{Key: "trucks", Label: "Trucks", NaturalKey: "truckNumber"},
//	    Fields: []core.FieldSpec{
//	        {Name: "truckNumber", Label: "Truck Number", Required: true, Synonyms: []string{"Unit", "Truck #"}},
//	        {Name: "year", Type: core.FieldNumeric},
//	    },
//	    Build: buildTruck,
//	})
//
// # Mapping Precedence
//
// The deterministic pass runs first and is always available. The assisted
// pass only fills gaps and is discarded if the operator has edited the
// mapping since it was requested. A saved profile replaces the mapping for
// the columns it names. Operator overrides are applied last and always win.
//
// # Commit Flow
//
//  1. Client calls [Service.RunCommit] with the session's mapping and options
//  2. Rows are validated, deduplicated by natural key and classified
//     against existing records with one lookup
//  3. Work items are persisted in chunks of [DefaultChunkSize], each in one
//     transaction, falling back to one transaction per row on failure
//  4. Progress is broadcast to subscribers via [Service.SubscribeCommit]
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB007: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL006: Validation errors (formats, required fields, warnings)
//   - FILE001-FILE006: File errors (size, type, encoding, decoding)
//   - IMP001-IMP006: Import errors (cancelled, busy, not found)
//   - MAP001: Mapping errors
package core
