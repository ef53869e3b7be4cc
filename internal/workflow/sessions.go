package workflow

import (
	"sync"

	"scenecraft/internal/types"
)

// session is the per-session state the engine keeps between turns: the
// serialization lock and the last reported user pose. The pose has its own
// lock so tracking updates never queue behind an in-flight turn.
type session struct {
	mu sync.Mutex

	poseMu sync.Mutex
	pose   types.Pose
}

func (s *session) currentPose() types.Pose {
	s.poseMu.Lock()
	defer s.poseMu.Unlock()
	return s.pose
}

// sessionRegistry hands out session records, creating them on first use.
// Records are never evicted; a session is a lock and a pose, cheap enough to
// keep for the process lifetime.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) get(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = &session{}
		r.sessions[id] = s
	}
	return s
}

// UpdatePose records the user's head pose for a session. The planner reads
// it on the next turn; pose updates never block command processing.
func (e *Engine) UpdatePose(sessionID string, pose types.Pose) {
	if sessionID == "" {
		return
	}
	s := e.sessions.get(sessionID)
	s.poseMu.Lock()
	s.pose = pose
	s.poseMu.Unlock()
}
