package domain

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Member is an opaque member descriptor. Its shape is defined by the server;
// the client only stores and hands it back.
type Member json.RawMessage

// MarshalJSON keeps the raw descriptor as is.
func (m Member) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON copies the raw descriptor.
func (m *Member) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

// Decode unmarshals the descriptor into v.
func (m Member) Decode(v any) error {
	return json.Unmarshal(m, v)
}

func (m Member) Equal(o Member) bool { return bytes.Equal(m, o) }

// Roster is the current set of member descriptors of a presence channel.
type Roster []Member

// Clone returns a deep copy so callers never share the controller's backing arrays.
func (r Roster) Clone() Roster {
	if r == nil {
		return nil
	}
	out := make(Roster, len(r))
	for i, m := range r {
		out[i] = append(Member(nil), m...)
	}
	return out
}

// MemberFrom marshals v into a descriptor.
func MemberFrom(v any) (Member, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Member(b), nil
}
