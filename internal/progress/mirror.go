// Package progress keeps the state of the running download and fans
// snapshots out to any number of readers.
//
// Writers apply extractor events; every event produces a fresh immutable
// ProgressState that is swapped in atomically, so readers never see a
// partially updated record. Subscribers get the latest snapshot on a
// one-slot channel: a newer snapshot replaces one that was not yet received.
package progress

import (
	"sync"
	"sync/atomic"

	"mp4grab/internal/models"
)

type Mirror struct {
	state atomic.Pointer[models.ProgressState]

	// serializes writers so that read-modify-write of a snapshot is not lost
	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[*Subscription]struct{}
}

type Subscription struct {
	C      <-chan models.ProgressState
	ch     chan models.ProgressState
	mirror *Mirror
	once   sync.Once
}

func NewMirror() *Mirror {
	m := &Mirror{subs: make(map[*Subscription]struct{})}
	m.state.Store(&models.ProgressState{Status: models.StatusIdle})
	return m
}

// Snapshot returns the current state.
func (m *Mirror) Snapshot() models.ProgressState {
	return *m.state.Load()
}

// Reset returns the mirror to idle. Called at the start of every download.
func (m *Mirror) Reset() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.publish(models.ProgressState{Status: models.StatusIdle})
}

// Apply folds one extractor event into the state. Unknown statuses are ignored.
func (m *Mirror) Apply(ev models.ProgressEvent) models.ProgressState {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next, ok := Next(*m.state.Load(), ev)
	if !ok {
		return *m.state.Load()
	}
	m.publish(next)
	return next
}

// Fail moves the state to error with msg, whatever the current state is.
func (m *Mirror) Fail(msg string) {
	m.Apply(models.ProgressEvent{Status: string(models.StatusError), Error: msg})
}

// Next computes the state that follows cur after ev.
func Next(cur models.ProgressState, ev models.ProgressEvent) (models.ProgressState, bool) {
	next := cur
	switch models.Status(ev.Status) {
	case models.StatusDownloading:
		next.Status = models.StatusDownloading
		next.Error = ""
		next.DownloadedBytes = max(ev.DownloadedBytes, 0)
		next.TotalBytes = max(ev.TotalBytes, 0)
		if next.TotalBytes == 0 {
			next.TotalBytes = max(ev.TotalBytesEstimate, 0)
		}
		next.Speed = max(ev.Speed, 0)
		next.ETA = max(ev.ETA, 0)
		next.Percentage = 0
		if next.TotalBytes > 0 {
			next.Percentage = min(float64(next.DownloadedBytes)/float64(next.TotalBytes)*100, 100)
		}
		if ev.Filename != "" {
			next.Filename = ev.Filename
		}

	case models.StatusFinished:
		next.Status = models.StatusFinished
		next.Percentage = 100.0
		next.ETA = 0
		if ev.Filename != "" {
			next.Filename = ev.Filename
		}

	case models.StatusError:
		next.Status = models.StatusError
		next.Error = ev.Error

	default:
		return cur, false
	}
	return next, true
}

// Subscribe registers a reader. The current snapshot is delivered right away.
func (m *Mirror) Subscribe() *Subscription {
	ch := make(chan models.ProgressState, 1)
	sub := &Subscription{C: ch, ch: ch, mirror: m}

	m.subMu.Lock()
	m.subs[sub] = struct{}{}
	ch <- *m.state.Load()
	m.subMu.Unlock()
	return sub
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mirror.subMu.Lock()
		delete(s.mirror.subs, s)
		s.mirror.subMu.Unlock()
	})
}

func (m *Mirror) publish(st models.ProgressState) {
	m.state.Store(&st)

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for sub := range m.subs {
		// drop the stale snapshot, if any, then hand over the new one
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- st
	}
}
