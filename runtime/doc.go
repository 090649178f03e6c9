// Package runtime implements the dynamic object runtime whose values the
// capsule engine serializes.
//
// This package contains:
//   - Tagged value representation and insertion-ordered dicts
//   - Runtime-defined classes, enumerations, and instances
//   - Compiled code units with literals, name tables, and nested units
//   - Functions with closure cells and shared globals namespaces
//   - Bytecode opcode set, builders, and a stack interpreter
//   - Runtime-internal types (streams, weak sets, logger singletons)
package runtime
