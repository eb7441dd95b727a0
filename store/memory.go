package store

import (
	"sync"

	"lunchbox/menu"
)

// Memory keeps selections in process memory. Useful for tests and
// throwaway deployments; records are lost on restart.
type Memory struct {
	mu         sync.Mutex
	selections []Selection
}

func NewMemory() *Memory {
	return &Memory{
		selections: []Selection{},
	}
}

func (m *Memory) List() ([]Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Selection, len(m.selections))
	copy(out, m.selections)

	return out, nil
}

func (m *Memory) Add(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) (Selection, error) {
	selection := newSelection(dish, clientName, opts, quantity, note)

	m.mu.Lock()
	m.selections = append(m.selections, selection)
	m.mu.Unlock()

	return selection, nil
}

func (m *Memory) Remove(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.selections {
		if s.ID == id {
			m.selections = append(m.selections[:i], m.selections[i+1:]...)

			return true, nil
		}
	}

	return false, nil
}

func (m *Memory) RemoveAll() error {
	m.mu.Lock()
	m.selections = m.selections[:0]
	m.mu.Unlock()

	return nil
}

func (m *Memory) RenameClient(oldName, newName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := 0

	for i := range m.selections {
		if m.selections[i].ClientName == oldName {
			m.selections[i].ClientName = newName
			updated++
		}
	}

	return updated, nil
}

func (m *Memory) Close() error {
	return nil
}
