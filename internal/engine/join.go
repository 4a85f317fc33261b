package engine

import (
	"time"

	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/session"
)

// joinLocked attempts to join the session's realtime room. While the
// channel is not ready it schedules a bounded fixed-interval retry tied to
// the session: teardown stops the timer, promotion restarts the sequence
// under the durable id.
func (e *Engine) joinLocked(s *session.Session) {
	if s.Joined {
		return
	}
	err := e.realtime.Join(s.ID)
	if err == nil {
		s.Joined = true
		s.JoinAttempts = 0
		s.StopJoinTimer()
		return
	}

	if s.JoinAttempts >= e.opts.JoinRetryAttempts {
		logger.Errorf("engine: giving up joining %s after %d attempts: %v", s.ID, s.JoinAttempts, err)
		s.StopJoinTimer()
		return
	}
	s.JoinAttempts++
	id := s.ID
	s.SetJoinTimer(time.AfterFunc(e.opts.JoinRetryInterval, func() {
		e.retryJoin(id)
	}))
}

func (e *Engine) retryJoin(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.dir.Get(conversationID)
	if s == nil || s.Joined {
		return
	}
	e.joinLocked(s)
}
