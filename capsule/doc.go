// Package capsule serializes runtime objects that have no stable
// importable identity (functions, classes, and enums defined at the
// entry prompt or inside other functions) so they can be reconstructed
// in a separate process of the same runtime without reloading their
// defining source.
//
// The engine composes five pieces:
//
//   - Resolver: decides per named object whether a lookup path suffices
//     or the object must travel by value.
//   - Extractor: static analysis over compiled units, yielding the
//     global names a function body actually depends on.
//   - Tracker: a weak two-way registry pairing dynamic types with
//     tracking ids, so "the same" class stays one class across streams.
//   - Skeleton: two-phase shell-then-fill class reconstruction, which is
//     what breaks method-closes-over-its-own-class cycles.
//   - The dispatch layer: an override hook on the wire backend plus a
//     per-kind table of hand-written strategies for runtime-internal
//     types.
//
// Ordinary data (numbers, strings, arrays, dicts, instances) never
// reaches this package; the wire backend handles it directly.
package capsule
