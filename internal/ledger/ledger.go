// Package ledger keeps the per-session append-only history of processed
// turns. The in-memory window is capped per session; the optional SQLite
// archive keeps everything. Turns are appended exactly once, at the end of a
// workflow run, and never mutated afterwards.
package ledger

import (
	"sync"
	"time"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

// Ledger is the session turn history. Sessions are created implicitly on
// their first append.
type Ledger struct {
	mu       sync.RWMutex
	sessions map[string][]types.Turn
	counters map[string]int // session-monotonic turn numbers, survive capping
	maxTurns int
	archive  *Archive // optional; nil disables archiving
}

// New creates a ledger keeping at most maxTurnsPerSession turns in memory
// per session. archive may be nil.
func New(maxTurnsPerSession int, archive *Archive) *Ledger {
	return &Ledger{
		sessions: make(map[string][]types.Turn),
		counters: make(map[string]int),
		maxTurns: maxTurnsPerSession,
		archive:  archive,
	}
}

// Append assigns the turn its session-monotonic number, appends it, and
// archives it. Returns the assigned number. Oldest turns are evicted from
// the in-memory window once the session exceeds its cap; the archive keeps
// them.
func (l *Ledger) Append(turn types.Turn) int {
	l.mu.Lock()
	if _, ok := l.sessions[turn.SessionID]; !ok {
		logging.Session("new session %s", turn.SessionID)
	}
	l.counters[turn.SessionID]++
	turn.Number = l.counters[turn.SessionID]

	history := append(l.sessions[turn.SessionID], turn)
	if l.maxTurns > 0 && len(history) > l.maxTurns {
		history = history[len(history)-l.maxTurns:]
	}
	l.sessions[turn.SessionID] = history
	l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.StoreTurn(&turn); err != nil {
			logging.Get(logging.CategoryLedger).Error("failed to archive turn %s/%d: %v",
				turn.SessionID, turn.Number, err)
		}
	}

	logging.LedgerDebug("appended turn %d to session %s (success=%v)", turn.Number, turn.SessionID, turn.Success)
	return turn.Number
}

// Recent returns the last n turns of a session, oldest first.
func (l *Ledger) Recent(sessionID string, n int) []types.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.sessions[sessionID]
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if n > len(history) {
		n = len(history)
	}
	out := make([]types.Turn, n)
	copy(out, history[len(history)-n:])
	return out
}

// History returns the full in-memory history of a session, oldest first.
func (l *Ledger) History(sessionID string) []types.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.sessions[sessionID]
	out := make([]types.Turn, len(history))
	copy(out, history)
	return out
}

// Sessions returns all known session ids.
func (l *Ledger) Sessions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.sessions))
	for id := range l.sessions {
		out = append(out, id)
	}
	return out
}

// SessionExists reports whether a session has any recorded turns.
func (l *Ledger) SessionExists(sessionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sessions[sessionID]
	return ok
}

// ClearSession drops a session's in-memory history. Returns false if the
// session did not exist. The archive is untouched.
func (l *Ledger) ClearSession(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.sessions[sessionID]; !ok {
		return false
	}
	delete(l.sessions, sessionID)
	delete(l.counters, sessionID)
	return true
}

// Stats summarizes a session.
type Stats struct {
	SessionID   string    `json:"sessionId"`
	TotalTurns  int       `json:"totalTurns"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	SuccessRate float64   `json:"successRate"` // percent
	FirstTurn   time.Time `json:"firstTurnTime,omitempty"`
	LastTurn    time.Time `json:"lastTurnTime,omitempty"`
}

// Stats computes statistics over a session's in-memory window.
func (l *Ledger) Stats(sessionID string) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.sessions[sessionID]
	stats := Stats{SessionID: sessionID, TotalTurns: len(history)}
	if len(history) == 0 {
		return stats
	}

	for _, t := range history {
		if t.Success {
			stats.Successful++
		}
	}
	stats.Failed = stats.TotalTurns - stats.Successful
	stats.SuccessRate = float64(stats.Successful) / float64(stats.TotalTurns) * 100
	stats.FirstTurn = history[0].Timestamp
	stats.LastTurn = history[len(history)-1].Timestamp
	return stats
}

// GlobalStats aggregates across all sessions.
type GlobalStats struct {
	TotalSessions   int     `json:"totalSessions"`
	TotalTurns      int     `json:"totalTurns"`
	TotalSuccessful int     `json:"totalSuccessful"`
	TotalFailed     int     `json:"totalFailed"`
	SuccessRate     float64 `json:"globalSuccessRate"` // percent
}

// GlobalStats computes statistics over every session.
func (l *Ledger) GlobalStats() GlobalStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var gs GlobalStats
	gs.TotalSessions = len(l.sessions)
	for _, history := range l.sessions {
		gs.TotalTurns += len(history)
		for _, t := range history {
			if t.Success {
				gs.TotalSuccessful++
			}
		}
	}
	gs.TotalFailed = gs.TotalTurns - gs.TotalSuccessful
	if gs.TotalTurns > 0 {
		gs.SuccessRate = float64(gs.TotalSuccessful) / float64(gs.TotalTurns) * 100
	}
	return gs
}

// Export is a serializable snapshot of the whole ledger.
type Export struct {
	ExportTime  time.Time               `json:"exportTime"`
	GlobalStats GlobalStats             `json:"globalStats"`
	Sessions    map[string][]types.Turn `json:"sessions"`
}

// ExportAll snapshots every session for serialization.
func (l *Ledger) ExportAll() *Export {
	l.mu.RLock()
	sessions := make(map[string][]types.Turn, len(l.sessions))
	for id, history := range l.sessions {
		out := make([]types.Turn, len(history))
		copy(out, history)
		sessions[id] = out
	}
	l.mu.RUnlock()

	return &Export{
		ExportTime:  time.Now().UTC(),
		GlobalStats: l.GlobalStats(),
		Sessions:    sessions,
	}
}

// SessionExport is a serializable snapshot of one session.
type SessionExport struct {
	SessionID string       `json:"sessionId"`
	Stats     Stats        `json:"stats"`
	History   []types.Turn `json:"history"`
}

// ExportSession snapshots one session for serialization.
func (l *Ledger) ExportSession(sessionID string) *SessionExport {
	return &SessionExport{
		SessionID: sessionID,
		Stats:     l.Stats(sessionID),
		History:   l.History(sessionID),
	}
}
