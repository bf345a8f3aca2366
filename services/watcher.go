package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultSettleDelay is how long a file must stay quiet before it is ingested.
const DefaultSettleDelay = 500 * time.Millisecond

// InboxWatcher ingests PDFs dropped into a directory.
type InboxWatcher struct {
	dir        string
	ragService RAGService
	settle     time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewInboxWatcher creates a watcher for dir. A zero settle uses DefaultSettleDelay.
func NewInboxWatcher(dir string, ragService RAGService, settle time.Duration) *InboxWatcher {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &InboxWatcher{
		dir:        dir,
		ragService: ragService,
		settle:     settle,
		pending:    make(map[string]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled, ingesting every PDF that is created
// or written in the directory.
func (w *InboxWatcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	logrus.WithField("dir", w.dir).Info("WATCHER: watching directory")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsPDF(event.Name) {
				continue
			}
			// Editors and copies fire several events per file; both are handled
			// the same way once the file settles.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logrus.WithField("event", event.String()).Debug("WATCHER: event")
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Error("WATCHER: watcher error")

		case <-ctx.Done():
			w.stopPending()
			logrus.Info("WATCHER: context cancelled, shutting down watcher")
			return nil
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *InboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(ctx, path)
}

func (w *InboxWatcher) scheduleLocked(ctx context.Context, path string) {
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		// A newer event may already have replaced this timer.
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

func (w *InboxWatcher) stopPending() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// ingest runs the upload pipeline on path unless the index already holds
// this exact file.
func (w *InboxWatcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	log := logrus.WithField("path", path)

	hash, err := calculateFileHash(path)
	if err != nil {
		log.WithError(err).Warn("WATCHER: could not hash file")
		return
	}
	if current := w.ragService.IndexedFile(); current.Path == path && current.Hash == hash {
		log.Debug("WATCHER: file already indexed, skipping")
		return
	}

	log.Info("WATCHER: file created or modified, re-indexing")
	n, err := w.ragService.IngestFile(ctx, path)
	if err != nil {
		log.WithError(err).Error("WATCHER: failed to process file")
		return
	}
	log.WithField("chunks", n).Info("WATCHER: file indexed")
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
