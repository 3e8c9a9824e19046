package chunkstore

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dlan-project/dlan-core/persist"
	"github.com/dlan-project/dlan-core/syncutil"
)

// EventKind is the coalesced vocabulary watcher events are translated
// into, per spec.md §4.1.
type EventKind int

const (
	EventNew EventKind = iota
	EventDeleted
	EventContentChanged
	EventMove
	EventTimeout
)

// Event is a single coalesced filesystem change.
type Event struct {
	Kind EventKind
	Path string // for EventMove, the destination; From carries the source
	From string
}

// Watcher wraps one fsnotify.Watcher per shared root, coalescing raw
// fsnotify events into Event and issuing a full-rescan signal on
// buffer overflow or when the root's filesystem does not support
// watches at all. EventMove is never emitted: a rename is reported as
// EventDeleted for its source path, and From is never set.
type Watcher struct {
	se     *SharedEntry
	log    *persist.Logger
	tg     syncutil.ThreadGroup
	events chan Event
	rescan chan struct{}

	scanPeriodUnwatchable time.Duration
}

// NewWatcher returns a Watcher for se. If the underlying fsnotify
// watcher cannot be created (unsupported filesystem), the watcher
// falls back to periodic polling at scanPeriodUnwatchable.
func NewWatcher(se *SharedEntry, scanPeriodUnwatchable time.Duration, log *persist.Logger) *Watcher {
	return &Watcher{
		se:                    se,
		log:                   log,
		events:                make(chan Event, 256),
		rescan:                make(chan struct{}, 1),
		scanPeriodUnwatchable: scanPeriodUnwatchable,
	}
}

// Events returns the channel of coalesced events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. It returns immediately; watching happens on
// a background goroutine gated by the Watcher's ThreadGroup.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w.startPolling()
	}
	if err := fw.Add(w.se.AbsPath); err != nil {
		fw.Close()
		return w.startPolling()
	}
	if err := w.tg.Add(); err != nil {
		fw.Close()
		return err
	}
	go w.runNative(fw)
	return nil
}

func (w *Watcher) runNative(fw *fsnotify.Watcher) {
	defer w.tg.Done()
	defer fw.Close()
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				w.requestFullRescan()
				return
			}
			w.translate(ev)
		case err, ok := <-fw.Errors:
			if !ok || err != nil {
				w.requestFullRescan()
				return
			}
		case <-w.tg.StopChan():
			return
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = EventNew
	case ev.Op&fsnotify.Remove != 0:
		kind = EventDeleted
	case ev.Op&fsnotify.Write != 0:
		kind = EventContentChanged
	case ev.Op&fsnotify.Rename != 0:
		kind = EventDeleted // fsnotify reports the source side of a rename as Rename
	default:
		return
	}
	select {
	case w.events <- Event{Kind: kind, Path: ev.Name}:
	case <-w.tg.StopChan():
	}
}

func (w *Watcher) requestFullRescan() {
	select {
	case w.events <- Event{Kind: EventTimeout, Path: w.se.AbsPath}:
	default:
	}
}

func (w *Watcher) startPolling() error {
	if err := w.tg.Add(); err != nil {
		return err
	}
	go func() {
		defer w.tg.Done()
		ticker := time.NewTicker(w.scanPeriodUnwatchable)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.requestFullRescan()
			case <-w.tg.StopChan():
				return
			}
		}
	}()
	return nil
}

// Stop halts the watcher, native or polling.
func (w *Watcher) Stop() error {
	return w.tg.Stop()
}
