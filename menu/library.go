package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const indexFile = "menu.json"

var (
	ErrNotFound      = errors.New("menu not found")
	ErrInvalidPath   = errors.New("invalid data path")
	ErrInvalidFormat = errors.New("invalid menu data format")
)

type eateryIndex struct {
	Eateries []Eatery `json:"eateries"`
}

type menuFile struct {
	MenuInfos []RawDishType `json:"menu_infos"`
}

// Library reads menus from a data directory and caches the parsed
// results until the underlying file changes on disk.
type Library struct {
	dir string

	mu         sync.RWMutex
	eateries   []Eatery
	eateriesOK bool
	menus      map[string][]DishType

	watcher  *fsnotify.Watcher
	onChange func(dataPath string)
}

func NewLibrary(dir string) *Library {
	return &Library{
		dir:   dir,
		menus: make(map[string][]DishType),
	}
}

// OnChange registers a callback invoked whenever a data file changes.
// The argument is the affected dataPath, or "" for the eatery index.
// Must be called before Watch.
func (l *Library) OnChange(fn func(dataPath string)) {
	l.onChange = fn
}

// Watch begins invalidating cached entries when files in the data
// directory are written, created, removed, or renamed.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()

		return err
	}

	l.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, ".json") {
					continue
				}
				l.invalidate(strings.TrimSuffix(name, ".json"))
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}

func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}

	return l.watcher.Close()
}

func (l *Library) invalidate(name string) {
	l.mu.Lock()
	dataPath := name
	if name+".json" == indexFile {
		l.eateriesOK = false
		dataPath = ""
	} else {
		delete(l.menus, name)
	}
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(dataPath)
	}
}

// Eateries returns the index of known eateries from menu.json.
func (l *Library) Eateries() ([]Eatery, error) {
	l.mu.RLock()
	if l.eateriesOK {
		cached := l.eateries
		l.mu.RUnlock()

		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("reading eatery index: %w", err)
	}

	var index eateryIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, indexFile)
	}

	if index.Eateries == nil {
		index.Eateries = []Eatery{}
	}

	l.mu.Lock()
	l.eateries = index.Eateries
	l.eateriesOK = true
	l.mu.Unlock()

	return index.Eateries, nil
}

// Menu returns the mapped menu for one eatery's dataPath.
func (l *Library) Menu(dataPath string) ([]DishType, error) {
	if !ValidDataPath(dataPath) {
		return nil, ErrInvalidPath
	}

	l.mu.RLock()
	if cached, ok := l.menus[dataPath]; ok {
		l.mu.RUnlock()

		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.dir, dataPath+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading menu %q: %w", dataPath, err)
	}

	var file menuFile
	if err := json.Unmarshal(data, &file); err != nil || file.MenuInfos == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, dataPath)
	}

	mapped := Map(file.MenuInfos)

	l.mu.Lock()
	l.menus[dataPath] = mapped
	l.mu.Unlock()

	return mapped, nil
}

// ValidDataPath rejects anything that could escape the data directory.
func ValidDataPath(dataPath string) bool {
	if dataPath == "" || filepath.IsAbs(dataPath) {
		return false
	}

	normalized := filepath.Clean(dataPath)

	return normalized != ".." && !strings.HasPrefix(normalized, ".."+string(filepath.Separator))
}
