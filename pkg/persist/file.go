package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// slotSuffix is appended to the key to form the slot file name.
const slotSuffix = ".json"

// File stores each slot as a file in one directory. Writes are atomic
// (temporary file plus rename) so readers in other processes never observe
// a partially written slot.
type File struct {
	dir    string
	logger *zap.Logger
	log    writeLog
}

// FileOption configures a File.
type FileOption func(*File)

// WithFileLogger sets the logger used by the file backend and its watchers.
func WithFileLogger(logger *zap.Logger) FileOption {
	return func(f *File) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFile opens (and creates if needed) a slot directory.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	f := &File{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("persist: failed to create slot directory: %w", err)
	}
	return f, nil
}

// Dir returns the slot directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) slotPath(key string) string {
	return filepath.Join(f.dir, key+slotSuffix)
}

// Get returns the slot value.
func (f *File) Get(key string) (string, bool, error) {
	value, ok, err := f.read(key)
	if err != nil {
		return "", false, err
	}
	f.log.recordWrite(key, value)
	return value, ok, nil
}

func (f *File) read(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.slotPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("persist: failed to read slot: %w", err)
	}
	return string(data), true, nil
}

// Set atomically replaces the slot file.
func (f *File) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := checkSpaceForWrite(f.dir, len(value), f.logger); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: failed to write slot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: failed to sync slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: failed to close slot: %w", err)
	}
	if err := os.Chmod(tmpName, FileMode); err != nil {
		return fmt.Errorf("persist: failed to set slot permissions: %w", err)
	}

	// Record before the rename so the watcher treats the resulting event
	// as our own write.
	f.log.recordWrite(key, value)
	if err := os.Rename(tmpName, f.slotPath(key)); err != nil {
		return fmt.Errorf("persist: failed to replace slot: %w", err)
	}
	return nil
}

// FileWatcher announces changes to one slot made by other processes.
// It implements Notifier.
type FileWatcher struct {
	mu      sync.Mutex
	file    *File
	key     string
	watcher *fsnotify.Watcher
	subs    subscribers
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// Watch creates a watcher for key. Call Start to begin delivering events
// and Close to release it.
func (f *File) Watch(key string) (*FileWatcher, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("persist: failed to create watcher: %w", err)
	}
	return &FileWatcher{
		file:    f,
		key:     key,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Subscribe registers fn for external changes.
func (w *FileWatcher) Subscribe(fn func()) func() {
	return w.subs.add(fn)
}

// Start begins watching the slot directory. It does not block.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.file.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("persist: failed to watch %s: %w", w.file.dir, err)
	}
	w.file.logger.Debug("watching slot", zap.String("dir", w.file.dir), zap.String("key", w.key))

	go w.run(ctx)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *FileWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	name := w.key + slotSuffix

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.check()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.file.logger.Warn("slot watcher error", zap.Error(err))
		}
	}
}

// check reads the slot and notifies subscribers if the content is new to
// this process.
func (w *FileWatcher) check() {
	value, _, err := w.file.read(w.key)
	if err != nil {
		w.file.logger.Warn("failed to read slot after change", zap.String("key", w.key), zap.Error(err))
		return
	}
	if !w.file.log.external(w.key, value) {
		return
	}
	w.file.logger.Debug("external slot change", zap.String("key", w.key))
	w.subs.notify()
}
