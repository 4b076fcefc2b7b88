// Package filedoc implements reconcile.Document over a file on disk.
//
// Local changes are detected by watching the file and diffing its new
// contents against the last known snapshot. Remote edits update the
// snapshot before they are written, so writing them back to disk does
// not produce a change notification.
package filedoc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/reconcile"
)

// Document is a file-backed reconcile.Document.
type Document struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu        sync.Mutex
	snapshot  string
	listeners []func(reconcile.ChangeEvent)

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// Open reads path, creating it if missing, and prepares a watcher on its
// directory. Call Start to begin reporting changes.
func Open(path string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(abs, nil, 0o644); err != nil {
			return nil, fmt.Errorf("filedoc: create %s: %w", abs, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("filedoc: read %s: %w", abs, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors often replace the file on save, so watch the directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	return &Document{
		path:     abs,
		watcher:  w,
		logger:   logger.With("component", "filedoc", "path", abs),
		snapshot: string(data),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Path returns the absolute file path.
func (d *Document) Path() string {
	return d.path
}

// Text returns the last known contents.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// OnChange registers fn to be called for every change made outside this
// Document.
func (d *Document) OnChange(fn func(reconcile.ChangeEvent)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Replace applies the edit to the snapshot and writes the file.
func (d *Document) Replace(ctx context.Context, r protocol.Range, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start, err := reconcile.ByteOffset(d.snapshot, r.Start)
	if err != nil {
		return err
	}
	end, err := reconcile.ByteOffset(d.snapshot, r.End)
	if err != nil || end < start {
		return reconcile.ErrRangeOutOfBounds
	}

	next := d.snapshot[:start] + text + d.snapshot[end:]
	if err := d.writeLocked(next); err != nil {
		return err
	}
	d.snapshot = next
	return nil
}

// writeLocked replaces the file through a rename so the watcher never
// reads a partial write.
func (d *Document) writeLocked(content string) error {
	tmp := d.path + ".collabcode.tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("filedoc: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filedoc: replace %s: %w", d.path, err)
	}
	return nil
}

// Start begins watching the file.
func (d *Document) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()
	go d.run()
}

// Close stops watching.
func (d *Document) Close() error {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	if started {
		<-d.doneCh
	}
	return d.watcher.Close()
}

func (d *Document) run() {
	defer close(d.doneCh)

	for {
		select {
		case <-d.stopCh:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != d.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := d.refresh(); err != nil {
				d.logger.Warn("reload failed", "error", err)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("watcher error", "error", err)
		}
	}
}

// refresh rereads the file and reports the difference from the snapshot.
func (d *Document) refresh() error {
	d.mu.Lock()
	data, err := os.ReadFile(d.path)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	current := string(data)
	old := d.snapshot
	if current == old {
		d.mu.Unlock()
		return nil
	}
	d.snapshot = current
	listeners := append([]func(reconcile.ChangeEvent){}, d.listeners...)
	d.mu.Unlock()

	ev := reconcile.ChangeEvent{Changes: Changes(old, current), Origin: reconcile.OriginLocal}
	d.logger.Debug("file changed", "changes", len(ev.Changes))
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Changes returns deltas that turn before into after when applied in
// order. Ranges address before; the deltas are ordered last to first so
// applying one never shifts the range of the next.
func Changes(before, after string) []protocol.EditDelta {
	if before == after {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	type span struct {
		start, end int
		text       string
	}
	var spans []span
	offset := 0
	var cur *span
	flush := func() {
		if cur != nil {
			spans = append(spans, *cur)
			cur = nil
		}
	}

	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			offset += len(diff.Text)
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &span{start: offset, end: offset}
			}
			offset += len(diff.Text)
			cur.end = offset
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &span{start: offset, end: offset}
			}
			cur.text += diff.Text
		}
	}
	flush()

	deltas := make([]protocol.EditDelta, 0, len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		deltas = append(deltas, protocol.EditDelta{
			Range: protocol.Range{
				Start: reconcile.PositionAt(before, s.start),
				End:   reconcile.PositionAt(before, s.end),
			},
			Text: s.text,
		})
	}
	return deltas
}
