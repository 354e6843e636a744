// Package ir provides the canonical intermediate representation for ruletrace.
//
// This package is the foundation layer: every other internal package imports
// ir, ir imports nothing internal. It holds
//   - the sealed IRValue model used for every persisted or hashed document
//   - RFC 8785 canonical JSON (the only encoding used for artifacts and dumps)
//   - domain-separated content hashes
//   - the computation graph types (OpKind, Ref, Node, Graph)
//   - the error taxonomy shared by all components
//
// Key design constraints:
//   - NO float types in IRValue - float literals travel as their shortest
//     round-trip decimal string next to an explicit dtype
//   - All JSON keys use snake_case
//   - Node ids are logical sequence numbers, never addresses or timestamps
package ir
