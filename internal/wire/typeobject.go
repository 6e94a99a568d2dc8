package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// TypeHashSize is the size of a TypeObject compatibility hash (spec §4.5:
// "PID_TYPE_OBJECT_HASH ... 14-byte truncated hash of the member layout").
const TypeHashSize = 14

// TypeHash is a truncated hash of a type's member layout, used to decide
// wire compatibility between a writer and reader's data representations
// without exchanging full type descriptions (spec §4.5).
type TypeHash [TypeHashSize]byte

func (h TypeHash) String() string {
	return fmt.Sprintf("%x", [TypeHashSize]byte(h))
}

// MemberDescriptor is one field of a type's member layout, in declaration
// order, as fed to HashTypeMembers.
type MemberDescriptor struct {
	Name string
	Kind MemberKind
	// ElementHash is non-zero-value only when Kind is MemberKindNested,
	// identifying the nested type's own hash so renaming an outer type
	// doesn't change its nested members' contribution.
	ElementHash TypeHash
}

// MemberKind enumerates the primitive CDR kinds a member's wire
// representation can take (spec §4.5 data model primitives).
type MemberKind byte

const (
	MemberKindBool MemberKind = iota
	MemberKindByte
	MemberKindInt16
	MemberKindUint16
	MemberKindInt32
	MemberKindUint32
	MemberKindInt64
	MemberKindUint64
	MemberKindFloat32
	MemberKindFloat64
	MemberKindString
	MemberKindSequence
	MemberKindNested
)

// HashTypeMembers computes the truncated compatibility hash for a type
// from its ordered member list. Two types hash identically iff their
// member names, kinds, and (for nested members) nested hashes match in
// the same order — matching spec §4.5's requirement that "a reader and
// writer with assignable-but-not-identical types ... are only matched when
// their hashes agree", i.e. structural equality, not name-only matching.
func HashTypeMembers(members []MemberDescriptor) TypeHash {
	h := sha256.New()
	for _, m := range members {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(m.Name)))
		h.Write(lenBuf[:])
		h.Write([]byte(m.Name))
		h.Write([]byte{byte(m.Kind)})
		if m.Kind == MemberKindNested {
			h.Write(m.ElementHash[:])
		}
	}

	sum := h.Sum(nil)
	var out TypeHash
	copy(out[:], sum[:TypeHashSize])
	return out
}

// Compatible reports whether two type hashes identify structurally
// identical wire layouts. Hash equality is the only compatibility test
// this runtime performs; it does not attempt partial/assignable-type
// matching beyond what spec §4.5 requires.
func (h TypeHash) Compatible(other TypeHash) bool {
	return h == other
}
