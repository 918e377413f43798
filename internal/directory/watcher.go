package directory

import "sync"

// Watcher is one live subscription to a user's View. Only the latest View is
// kept for a slow reader; intermediate versions are skipped.
type Watcher struct {
	p    *Projection
	uid  string
	ch   chan View
	once sync.Once
}

// C delivers views. It is closed by Stop.
func (w *Watcher) C() <-chan View {
	return w.ch
}

// UID returns the watched user.
func (w *Watcher) UID() string {
	return w.uid
}

// Stop cancels the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		w.p.removeWatcher(w)
	})
}

// push replaces any undelivered view with v. Called with the projection lock held.
func (w *Watcher) push(v View) {
	select {
	case w.ch <- v:
		return
	default:
	}
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- v:
	default:
	}
}
