// Package store is the content-addressed cache for compiled units and
// their capsules. Units hash by structure, so the same function body
// compiled twice lands on one entry, and a worker that already holds a
// hash never needs the bytes again.
package store

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/chazu/capsule/runtime"
)

// ---------------------------------------------------------------------------
// Structural unit hashing
// ---------------------------------------------------------------------------

// HashUnit computes the SHA-256 of a compiled unit's structure: name,
// arity, locals, cell variables, name table, bytecode, string and
// numeric literals, and the hashes of nested units. Module and line
// metadata stay out of the hash, so relocating a definition does not
// change its identity.
func HashUnit(u *runtime.CodeUnit) [32]byte {
	var buf []byte

	writeString := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s...)
	}
	writeUint32 := func(n uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], n)
		buf = append(buf, b[:]...)
	}

	// Tag byte for unit hash format
	buf = append(buf, 0x02)
	writeString(u.Name)
	writeUint32(uint32(u.Arity))
	writeUint32(uint32(u.NumLocals))
	writeUint32(uint32(len(u.CellVars)))
	for _, cv := range u.CellVars {
		writeString(cv)
	}
	writeUint32(uint32(len(u.Names)))
	for _, n := range u.Names {
		writeString(n)
	}
	writeUint32(uint32(len(u.Code)))
	buf = append(buf, u.Code...)

	writeUint32(uint32(len(u.Literals)))
	for _, lit := range u.Literals {
		switch x := lit.(type) {
		case runtime.StringValue:
			buf = append(buf, 's')
			writeString(string(x))
		case runtime.IntValue:
			buf = append(buf, 'i')
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(x))
			buf = append(buf, b[:]...)
		case runtime.FloatValue:
			buf = append(buf, 'f')
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(x)))
			buf = append(buf, b[:]...)
		case runtime.BytesValue:
			buf = append(buf, 'y')
			writeUint32(uint32(len(x)))
			buf = append(buf, x...)
		case *runtime.CodeUnit:
			buf = append(buf, 'u')
			h := HashUnit(x)
			buf = append(buf, h[:]...)
		default:
			buf = append(buf, '?')
			writeString(lit.Kind().String())
		}
	}

	writeUint32(uint32(len(u.Units)))
	for _, nested := range u.Units {
		h := HashUnit(nested)
		buf = append(buf, h[:]...)
	}

	return sha256.Sum256(buf)
}

// ---------------------------------------------------------------------------
// In-memory index
// ---------------------------------------------------------------------------

// Store indexes compiled units and their encoded capsules by content
// hash. It is the worker-local backing for capsule distribution.
type Store struct {
	mu       sync.RWMutex
	units    map[[32]byte]*runtime.CodeUnit
	capsules map[[32]byte][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		units:    make(map[[32]byte]*runtime.CodeUnit),
		capsules: make(map[[32]byte][]byte),
	}
}

// IndexUnit adds a unit, keyed by its structural hash, and returns the
// hash.
func (s *Store) IndexUnit(u *runtime.CodeUnit) [32]byte {
	h := HashUnit(u)
	s.mu.Lock()
	s.units[h] = u
	s.mu.Unlock()
	return h
}

// LookupUnit returns the unit for the given hash, or nil.
func (s *Store) LookupUnit(h [32]byte) *runtime.CodeUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units[h]
}

// PutCapsule stores an encoded capsule under a hash.
func (s *Store) PutCapsule(h [32]byte, data []byte) {
	s.mu.Lock()
	s.capsules[h] = data
	s.mu.Unlock()
}

// GetCapsule returns the capsule bytes for a hash, or nil.
func (s *Store) GetCapsule(h [32]byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capsules[h]
}

// Has reports whether the store holds either a unit or a capsule under
// the hash.
func (s *Store) Has(h [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[h]; ok {
		return true
	}
	_, ok := s.capsules[h]
	return ok
}

// UnitHashes returns all indexed unit hashes.
func (s *Store) UnitHashes() [][32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([][32]byte, 0, len(s.units))
	for h := range s.units {
		hashes = append(hashes, h)
	}
	return hashes
}
