package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lunchbox/menu"
)

// File persists selections as a single JSON array on disk. Each
// operation reads and rewrites the whole file under a mutex, so the
// store always reflects what is on disk.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	f := &File{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := f.write([]Selection{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking store file: %w", err)
	}

	return f, nil
}

func (f *File) read() ([]Selection, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading selections: %w", err)
	}

	var selections []Selection
	if err := json.Unmarshal(data, &selections); err != nil {
		return nil, fmt.Errorf("parsing selections: %w", err)
	}

	if selections == nil {
		selections = []Selection{}
	}

	return selections, nil
}

func (f *File) write(selections []Selection) error {
	data, err := json.MarshalIndent(selections, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding selections: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("writing selections: %w", err)
	}

	return nil
}

func (f *File) List() ([]Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read()
}

func (f *File) Add(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) (Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	selections, err := f.read()
	if err != nil {
		return Selection{}, err
	}

	selection := newSelection(dish, clientName, opts, quantity, note)

	if err := f.write(append(selections, selection)); err != nil {
		return Selection{}, err
	}

	return selection, nil
}

func (f *File) Remove(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	selections, err := f.read()
	if err != nil {
		return false, err
	}

	kept := selections[:0]
	for _, s := range selections {
		if s.ID != id {
			kept = append(kept, s)
		}
	}

	if len(kept) == len(selections) {
		return false, nil
	}

	return true, f.write(kept)
}

func (f *File) RemoveAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write([]Selection{})
}

func (f *File) RenameClient(oldName, newName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	selections, err := f.read()
	if err != nil {
		return 0, err
	}

	updated := 0

	for i := range selections {
		if selections[i].ClientName == oldName {
			selections[i].ClientName = newName
			updated++
		}
	}

	if updated == 0 {
		return 0, nil
	}

	return updated, f.write(selections)
}

func (f *File) Close() error {
	return nil
}
