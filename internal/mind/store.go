package mind

import (
	"sync"

	st "github.com/keshon/himera/internal/storagetypes"
)

// userState is what the pipeline remembers about a user between turns.
type userState struct {
	mu   sync.Mutex
	mode st.Mode
}

// States holds per-user dialogue state in memory. Safe for concurrent use.
type States struct {
	mu    sync.RWMutex
	users map[int64]*userState
}

func NewStates() *States {
	return &States{users: make(map[int64]*userState)}
}

func (s *States) user(userID int64) *userState {
	s.mu.RLock()
	u := s.users[userID]
	s.mu.RUnlock()
	if u != nil {
		return u
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u = s.users[userID]; u != nil {
		return u
	}
	u = &userState{mode: st.ModeAuto}
	s.users[userID] = u
	return u
}

// Mode returns the user's sticky mode, auto when none was chosen.
func (s *States) Mode(userID int64) st.Mode {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mode
}

func (s *States) SetMode(userID int64, m st.Mode) {
	u := s.user(userID)
	u.mu.Lock()
	u.mode = m
	u.mu.Unlock()
}
