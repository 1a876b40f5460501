package core

import "github.com/dkeye/DetectBench/internal/domain"

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	meta *domain.Member
	sig  SignalConnection
}

func NewMemberSession(meta *domain.Member, sig SignalConnection) MemberSession {
	return &memberSession{meta: meta, sig: sig}
}

func (m *memberSession) ID() SessionID            { return SessionID(m.meta.ID) }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.sig }
