package estimate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Backend is a string-keyed blob store. A missing key is reported with
// ok=false and a nil error.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

type backendCloser interface {
	Close() error
}

type InMemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{values: map[string]string{}}
}

func (b *InMemoryBackend) Get(key string) (string, bool, error) {
	if b == nil {
		return "", false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok, nil
}

func (b *InMemoryBackend) Set(key, value string) error {
	if b == nil {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = map[string]string{}
	}
	b.values[key] = value
	return nil
}

func (b *InMemoryBackend) Remove(key string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// FileBackend keeps one JSON file per key under Dir. Writes are atomic and
// serialized across processes with an advisory lock file.
type FileBackend struct {
	Dir string
	mu  sync.Mutex
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{Dir: strings.TrimSpace(dir)}
}

func (b *FileBackend) path(key string) (string, error) {
	if b == nil || b.Dir == "" {
		return "", ErrInvalidInput
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", ErrInvalidInput
	}
	return filepath.Join(b.Dir, key+".json"), nil
}

func (b *FileBackend) Get(key string) (string, bool, error) {
	path, err := b.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (b *FileBackend) Set(key, value string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	unlock, err := lockDir(b.Dir)
	if err != nil {
		return err
	}
	defer unlock()
	return writeFileAtomic(path, []byte(value), 0o644)
}

func (b *FileBackend) Remove(key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Watch blocks until ctx is done, calling onChange with the key of every
// record file written or removed under Dir, including by other processes.
func (b *FileBackend) Watch(ctx context.Context, onChange func(key string)) error {
	if b == nil || b.Dir == "" || onChange == nil {
		return ErrInvalidInput
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(b.Dir); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") || filepath.Ext(base) != ".json" {
				continue
			}
			onChange(strings.TrimSuffix(base, ".json"))
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
