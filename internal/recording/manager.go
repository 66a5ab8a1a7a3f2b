package recording

import (
	"sync"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Manager manages recorders for multiple sessions.
type Manager struct {
	mu        sync.RWMutex
	recorders map[string]*Recorder
	basePath  string
	enabled   bool
	fs        ports.FileSystem
	clock     ports.Clock
}

// NewManager creates a new recording manager.
func NewManager(basePath string, enabled bool, fs ports.FileSystem, clock ports.Clock) *Manager {
	return &Manager{
		recorders: make(map[string]*Recorder),
		basePath:  basePath,
		enabled:   enabled,
		fs:        fs,
		clock:     clock,
	}
}

// StartRecording starts recording for a session and returns the recorder.
// It returns nil, nil when recording is disabled.
func (m *Manager) StartRecording(sessionID, title string) (*Recorder, error) {
	if !m.enabled {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.recorders[sessionID]; ok {
		existing.Close()
	}

	recorder, err := NewRecorder(m.basePath, sessionID, title, m.fs, m.clock)
	if err != nil {
		return nil, err
	}

	m.recorders[sessionID] = recorder
	return recorder, nil
}

// StopRecording stops recording for a session.
func (m *Manager) StopRecording(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorder, ok := m.recorders[sessionID]
	if !ok {
		return nil
	}
	delete(m.recorders, sessionID)
	return recorder.Close()
}

// RecordingPath returns the path of the recording file for a session.
func (m *Manager) RecordingPath(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if recorder, ok := m.recorders[sessionID]; ok {
		return recorder.Path()
	}
	return ""
}

// CloseAll closes all recorders.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, recorder := range m.recorders {
		recorder.Close()
		delete(m.recorders, id)
	}
}

// IsEnabled returns whether recording is enabled.
func (m *Manager) IsEnabled() bool {
	return m.enabled
}
