package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
)

// WorkflowImporter upserts users and workflows from a YAML seed document
type WorkflowImporter interface {
	ImportYAML(ctx context.Context, r io.Reader) (*service.ImportResult, error)
}

// WorkflowWatcherConfig holds configuration for the seed directory watcher
type WorkflowWatcherConfig struct {
	Dir      string
	Debounce time.Duration
}

// WorkflowWatcher imports every seed file of a directory on start and
// re-imports a file whenever it is written. Import errors are logged and
// leave the stored workflows unchanged.
type WorkflowWatcher struct {
	config   WorkflowWatcherConfig
	importer WorkflowImporter
	logger   *zap.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

// NewWorkflowWatcher creates a new seed directory watcher
func NewWorkflowWatcher(config WorkflowWatcherConfig, importer WorkflowImporter, logger *zap.Logger) *WorkflowWatcher {
	if config.Debounce <= 0 {
		config.Debounce = 300 * time.Millisecond
	}
	return &WorkflowWatcher{
		config:   config,
		importer: importer,
		logger:   logger,
	}
}

// Start imports the existing seed files and begins watching the directory
func (w *WorkflowWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("workflow watcher already running")
	}

	if _, err := ImportDir(ctx, w.importer, w.config.Dir, w.logger); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.config.Dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.config.Dir, err)
	}

	var runCtx context.Context
	runCtx, w.cancel = context.WithCancel(ctx)
	w.watcher = watcher
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("WorkflowWatcher started", zap.String("dir", w.config.Dir))

	go w.watchLoop(runCtx, watcher, w.done)
	return nil
}

// Stop closes the watcher and waits for the loop to exit
func (w *WorkflowWatcher) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done, watcher := w.cancel, w.done, w.watcher
	w.mu.Unlock()

	cancel()
	err := watcher.Close()
	<-done

	w.logger.Info("WorkflowWatcher stopped")
	return err
}

// Name returns the worker name for identification
func (w *WorkflowWatcher) Name() string {
	return "WorkflowWatcher"
}

func (w *WorkflowWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	// editors emit several events per save, so changed files are collected
	// and imported once the directory has been quiet for the debounce period
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.config.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isSeedFile(evt.Name) || (!evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create)) {
				continue
			}
			pending[evt.Name] = struct{}{}
			timer.Reset(w.config.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case <-timer.C:
			for _, path := range sortedKeys(pending) {
				if _, err := importFile(ctx, w.importer, path, w.logger); err != nil {
					w.logger.Error("Failed to re-import seed file", zap.String("file", path), zap.Error(err))
				}
			}
			pending = make(map[string]struct{})
		}
	}
}

// ImportDir imports every *.yaml / *.yml file of dir in name order. A bad
// file is logged and skipped.
func ImportDir(ctx context.Context, importer WorkflowImporter, dir string, logger *zap.Logger) (*service.ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	total := &service.ImportResult{}
	for _, entry := range entries {
		if entry.IsDir() || !isSeedFile(entry.Name()) {
			continue
		}
		result, err := importFile(ctx, importer, filepath.Join(dir, entry.Name()), logger)
		if err != nil {
			logger.Error("Failed to import seed file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		total.Created += result.Created
		total.Updated += result.Updated
		total.Users += result.Users
	}
	return total, nil
}

func importFile(ctx context.Context, importer WorkflowImporter, path string, logger *zap.Logger) (*service.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	result, err := importer.ImportYAML(ctx, f)
	if err != nil {
		return nil, err
	}

	logger.Info("Seed file imported",
		zap.String("file", path),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("users", result.Users))
	return result, nil
}

func isSeedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
