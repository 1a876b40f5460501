package app

import (
	"sync"

	"github.com/dkeye/DetectBench/internal/core"
	"github.com/dkeye/DetectBench/internal/domain"
)

type nopConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *nopConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *nopConn) Close() {}

func newSession() core.MemberSession {
	return core.NewMemberSession(domain.NewMember("token", "127.0.0.1"), &nopConn{})
}
