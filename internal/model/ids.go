package model

import "fmt"

// Signature is a protocol instance's canonical textual form, round-tripping
// through parse/format (see internal/protocol's grammar).
type Signature string

// ProtocolOrderId is stable across re-emissions by the same protocol
// instance for the same slot.
type ProtocolOrderId struct {
	Signature Signature
	Ordinal   int
}

func (p ProtocolOrderId) String() string {
	return fmt.Sprintf("%s#%d", p.Signature, p.Ordinal)
}

// PositionOrderId is formed by the Hub on ingress by tagging a
// ProtocolOrderId with the owning position.
type PositionOrderId struct {
	PositionID PositionID
	Signature  Signature
	Ordinal    int
}

func (p PositionOrderId) String() string {
	return fmt.Sprintf("%s/%s#%d", p.PositionID, p.Signature, p.Ordinal)
}

// IntoProtocolID strips the position tag, recovering the protocol-local id.
func (p PositionOrderId) IntoProtocolID() ProtocolOrderId {
	return ProtocolOrderId{Signature: p.Signature, Ordinal: p.Ordinal}
}

// Less imposes the lexicographic (position_id, protocol_signature, ordinal)
// order the Hub uses so adapter-side diffs are stable.
func (p PositionOrderId) Less(o PositionOrderId) bool {
	if p.PositionID.String() != o.PositionID.String() {
		return p.PositionID.String() < o.PositionID.String()
	}
	if p.Signature != o.Signature {
		return p.Signature < o.Signature
	}
	return p.Ordinal < o.Ordinal
}
