// Package history keeps a linear undo/redo log of drawing layer snapshots.
//
// The undo stack always holds at least one entry, the state the log was
// started from. Committing after an undo discards the redo branch; there is
// no branching history.
package history

import "slices"

// Manager is the undo/redo log. It is not safe for concurrent use; the
// owner serializes access.
type Manager struct {
	undo []Snapshot
	redo []Snapshot
}

// NewManager starts a log whose bottom entry is initial.
func NewManager(initial Snapshot) *Manager {
	return &Manager{undo: []Snapshot{initial}}
}

// Reset discards all entries and restarts the log at initial.
func (m *Manager) Reset(initial Snapshot) {
	m.undo = append(m.undo[:0], initial)
	m.redo = m.redo[:0]
}

// Commit pushes s as the new current state and clears the redo stack.
func (m *Manager) Commit(s Snapshot) {
	m.undo = append(m.undo, s)
	m.redo = m.redo[:0]
}

// Undo moves the current state onto the redo stack and returns the new
// current state. It reports false at the bottom of the log.
func (m *Manager) Undo() (Snapshot, bool) {
	if !m.CanUndo() {
		return Snapshot{}, false
	}
	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, top)
	return m.undo[len(m.undo)-1], true
}

// Redo re-applies the most recently undone state and returns it.
// It reports false when there is nothing to redo.
func (m *Manager) Redo() (Snapshot, bool) {
	if !m.CanRedo() {
		return Snapshot{}, false
	}
	s := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, s)
	return s, true
}

// Current returns the active state.
func (m *Manager) Current() Snapshot {
	return m.undo[len(m.undo)-1]
}

// CanUndo reports whether the log is above its bottom entry.
func (m *Manager) CanUndo() bool { return len(m.undo) > 1 }

// CanRedo reports whether an undone state is available.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Len returns the undo stack depth, including the bottom entry.
func (m *Manager) Len() int { return len(m.undo) }

// RedoLen returns the number of redoable states.
func (m *Manager) RedoLen() int { return len(m.redo) }

// Mark is a saved position of the log, taken with Manager.Mark.
type Mark struct {
	undo, redo []Snapshot
}

// Mark records the current stacks. Snapshots are immutable, so the mark
// shares their payloads.
func (m *Manager) Mark() Mark {
	return Mark{undo: slices.Clone(m.undo), redo: slices.Clone(m.redo)}
}

// Rewind returns the log to mk. A zero Mark is ignored.
func (m *Manager) Rewind(mk Mark) {
	if len(mk.undo) == 0 {
		return
	}
	m.undo = append(m.undo[:0], mk.undo...)
	m.redo = append(m.redo[:0], mk.redo...)
}
