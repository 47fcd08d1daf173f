package application

import "time"

// SetClock replaces the session manager's clock for tests.
func (m *SessionManager) SetClock(now func() time.Time) { m.now = now }
