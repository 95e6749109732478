package api

// Member describes one statically configured peer in a consensus group.
// Membership is parsed once from GroupConfig.IDs/Servers and never
// changes at runtime (spec.md §9: "Membership is parsed as a static comma
// list; dynamic reconfiguration is not specified").
type Member struct {
	NodeID   uint64
	Addr     string
	Observer bool
}

const (
	fMemberID       = 1
	fMemberAddr     = 2
	fMemberObserver = 3
)

func (m *Member) Marshal() []byte {
	w := NewWriter()
	w.Varint(fMemberID, m.NodeID)
	w.Bytes(fMemberAddr, []byte(m.Addr))
	if m.Observer {
		w.Varint(fMemberObserver, 1)
	}
	return w.Finish()
}

func (m *Member) Unmarshal(buf []byte) error {
	r := NewReader(buf)
	return r.Each(func(f Field) error {
		switch f.Number {
		case fMemberID:
			m.NodeID = f.Varint
		case fMemberAddr:
			m.Addr = string(f.Bytes)
		case fMemberObserver:
			m.Observer = f.Varint != 0
		}
		return nil
	})
}
