package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
)

const maxReloadAttempts = 3

// GraphSource reads the committed friendship graph.
type GraphSource interface {
	ListFriends(ctx context.Context, uid string) ([]models.FriendshipEdge, error)
	IncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error)
	OutgoingPending(ctx context.Context, uid string) ([]models.FriendRequest, error)
}

// PresenceSource reads presence and derives rendered views from records.
type PresenceSource interface {
	PresenceMany(ctx context.Context, uids []string) (map[string]models.PresenceView, error)
	View(rec models.PresenceRecord) models.PresenceView
}

// Projection keeps a View per watched user. Views are loaded once when the
// first watcher arrives, patched from events while watched, reloaded after the
// event stream reports missed events, and dropped when the last watcher stops.
type Projection struct {
	graph    GraphSource
	presence PresenceSource
	profiles ProfileLookup
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	view     View
	loaded   bool
	loading  int
	dirty    bool
	watchers map[*Watcher]struct{}
}

// NewProjection creates a projection. profiles may be nil.
func NewProjection(graph GraphSource, presence PresenceSource, profiles ProfileLookup) *Projection {
	return &Projection{
		graph:    graph,
		presence: presence,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
		entries:  make(map[string]*entry),
	}
}

// Watch starts a live view of uid's directory. The current view is delivered
// immediately, followed by a new View after every change. Stop the watcher, or
// cancel ctx, to release it.
func (p *Projection) Watch(ctx context.Context, uid string) (*Watcher, error) {
	if uid == "" {
		return nil, models.NewUnauthenticatedError()
	}

	w := &Watcher{p: p, uid: uid, ch: make(chan View, 1)}

	p.mu.Lock()
	e, ok := p.entries[uid]
	if !ok {
		e = &entry{watchers: make(map[*Watcher]struct{})}
		p.entries[uid] = e
	}
	e.watchers[w] = struct{}{}
	loaded := e.loaded
	if loaded {
		w.push(e.view.clone())
	}
	p.mu.Unlock()

	if !loaded {
		if err := p.refresh(ctx, uid); err != nil {
			w.Stop()
			return nil, err
		}
	}
	context.AfterFunc(ctx, w.Stop)
	return w, nil
}

// Watched returns the number of users with a live view.
func (p *Projection) Watched() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Snapshot returns uid's current view, from memory when it is watched and
// up to date, otherwise straight from the sources.
func (p *Projection) Snapshot(ctx context.Context, uid string) (View, error) {
	if uid == "" {
		return View{}, models.NewUnauthenticatedError()
	}
	p.mu.Lock()
	if e, ok := p.entries[uid]; ok && e.loaded && !e.dirty && e.loading == 0 {
		v := e.view.clone()
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()
	return p.load(ctx, uid)
}

// Run applies events from sub until ctx is done or sub is cancelled.
func (p *Projection) Run(ctx context.Context, sub *notifications.Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			p.Apply(ctx, ev)
		}
	}
}

// Apply folds one event into the watched views it affects.
func (p *Projection) Apply(ctx context.Context, ev notifications.Event) {
	switch ev.Type {
	case notifications.EventRequestCreated, notifications.EventRequestResolved, notifications.EventRequestCancelled:
		if ev.Request != nil {
			p.applyRequest(*ev.Request)
		}
	case notifications.EventFriendshipEstablished:
		if ev.Friendship != nil {
			p.applyEstablished(ctx, *ev.Friendship)
		}
	case notifications.EventFriendshipRemoved:
		if ev.Friendship != nil {
			p.applyRemoved(*ev.Friendship)
		}
	case notifications.EventPresenceChanged:
		if ev.Presence != nil {
			p.applyPresence(p.presence.View(*ev.Presence))
		}
	case notifications.EventStreamDegraded:
		observability.Logger.WarnContext(ctx, "directory missed events, reloading views",
			slog.Int64("dropped", ev.Dropped),
		)
		p.reloadAll(ctx)
	}
}

func (p *Projection) applyRequest(req models.FriendRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.trackLocked(req.SenderUID); e != nil {
		if req.IsPending() {
			e.view.Outgoing = upsertRequest(e.view.Outgoing, req)
			p.changedLocked(e)
		} else if list, ok := removeRequest(e.view.Outgoing, req.ID); ok {
			e.view.Outgoing = list
			p.changedLocked(e)
		}
	}
	if e := p.trackLocked(req.ReceiverUID); e != nil {
		if req.IsPending() {
			e.view.Incoming = upsertRequest(e.view.Incoming, req)
			p.changedLocked(e)
		} else if list, ok := removeRequest(e.view.Incoming, req.ID); ok {
			e.view.Incoming = list
			p.changedLocked(e)
		}
	}
}

func (p *Projection) applyEstablished(ctx context.Context, change notifications.FriendshipChange) {
	p.mu.Lock()
	watched := p.entries[change.A] != nil || p.entries[change.B] != nil
	p.mu.Unlock()
	if !watched {
		return
	}

	pair := []string{change.A, change.B}
	presence, err := p.presence.PresenceMany(ctx, pair)
	if err != nil {
		observability.Logger.WarnContext(ctx, "directory presence lookup failed", slog.String("error", err.Error()))
		presence = map[string]models.PresenceView{}
	}
	profiles := p.lookupProfiles(ctx, pair)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, side := range [][2]string{{change.A, change.B}, {change.B, change.A}} {
		owner, other := side[0], side[1]
		e := p.trackLocked(owner)
		if e == nil {
			continue
		}
		f := Friend{UID: other, Since: change.Since, Presence: presenceOf(presence, other)}
		if prof, ok := profiles[other]; ok {
			f.Profile = &prof
		}
		e.view.upsertFriend(f)
		p.changedLocked(e)
	}
}

func (p *Projection) applyRemoved(change notifications.FriendshipChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.trackLocked(change.A); e != nil && e.view.removeFriend(change.B) {
		p.changedLocked(e)
	}
	if e := p.trackLocked(change.B); e != nil && e.view.removeFriend(change.A) {
		p.changedLocked(e)
	}
}

func (p *Projection) applyPresence(pv models.PresenceView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if !e.loaded {
			continue
		}
		if e.loading > 0 && e.view.hasFriend(pv.UID) {
			e.dirty = true
		}
		if e.view.setPresence(pv) {
			p.changedLocked(e)
		}
	}
}

// trackLocked returns the entry for uid when its view can be patched. An
// entry that is still loading is flagged so the load is repeated.
func (p *Projection) trackLocked(uid string) *entry {
	e, ok := p.entries[uid]
	if !ok {
		return nil
	}
	if !e.loaded || e.loading > 0 {
		e.dirty = true
		if !e.loaded {
			return nil
		}
	}
	return e
}

func (p *Projection) changedLocked(e *entry) {
	e.view.Version++
	e.view.UpdatedAt = p.now()
	p.publishLocked(e)
}

func (p *Projection) publishLocked(e *entry) {
	for w := range e.watchers {
		w.push(e.view.clone())
	}
}

func (p *Projection) reloadAll(ctx context.Context) {
	p.mu.Lock()
	uids := make([]string, 0, len(p.entries))
	for uid := range p.entries {
		uids = append(uids, uid)
	}
	p.mu.Unlock()

	for _, uid := range uids {
		if err := p.refresh(ctx, uid); err != nil {
			observability.Logger.WarnContext(ctx, "directory reload failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
}

// refresh reloads uid's view from the sources, repeating the load when events
// touched the entry while it was in flight.
func (p *Projection) refresh(ctx context.Context, uid string) error {
	for attempt := 1; ; attempt++ {
		p.mu.Lock()
		e, ok := p.entries[uid]
		if !ok {
			p.mu.Unlock()
			return nil
		}
		e.dirty = false
		e.loading++
		p.mu.Unlock()

		v, err := p.load(ctx, uid)

		p.mu.Lock()
		e.loading--
		if p.entries[uid] != e {
			p.mu.Unlock()
			return nil
		}
		if err != nil {
			if e.loaded {
				e.view.Degraded = true
				p.changedLocked(e)
			}
			p.mu.Unlock()
			return err
		}
		if e.dirty {
			if attempt < maxReloadAttempts {
				p.mu.Unlock()
				continue
			}
			// Events kept landing during every reload; the view may miss some.
			v.Degraded = true
		}
		v.Version = e.view.Version
		e.view = v
		e.loaded = true
		e.dirty = false
		p.changedLocked(e)
		p.mu.Unlock()
		return nil
	}
}

// load builds uid's view from the sources. A presence outage degrades the
// view to offline badges instead of failing it.
func (p *Projection) load(ctx context.Context, uid string) (View, error) {
	edges, err := p.graph.ListFriends(ctx, uid)
	if err != nil {
		return View{}, err
	}
	incoming, err := p.graph.IncomingPending(ctx, uid)
	if err != nil {
		return View{}, err
	}
	outgoing, err := p.graph.OutgoingPending(ctx, uid)
	if err != nil {
		return View{}, err
	}

	v := View{
		UID:       uid,
		Friends:   make([]Friend, 0, len(edges)),
		Incoming:  append([]models.FriendRequest{}, incoming...),
		Outgoing:  append([]models.FriendRequest{}, outgoing...),
		UpdatedAt: p.now(),
	}
	if len(edges) == 0 {
		return v, nil
	}

	uids := make([]string, 0, len(edges))
	for _, edge := range edges {
		uids = append(uids, edge.UID)
	}
	presence, err := p.presence.PresenceMany(ctx, uids)
	if err != nil {
		observability.Logger.WarnContext(ctx, "directory presence lookup failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		presence = map[string]models.PresenceView{}
		v.Degraded = true
	}
	profiles := p.lookupProfiles(ctx, uids)

	for _, edge := range edges {
		f := Friend{UID: edge.UID, Since: edge.Since, Presence: presenceOf(presence, edge.UID)}
		if prof, ok := profiles[edge.UID]; ok {
			f.Profile = &prof
		}
		v.Friends = append(v.Friends, f)
	}
	sortFriends(v.Friends)
	return v, nil
}

func (p *Projection) lookupProfiles(ctx context.Context, uids []string) map[string]Profile {
	if p.profiles == nil {
		return nil
	}
	profiles, err := p.profiles.Profiles(ctx, uids)
	if err != nil {
		observability.Logger.WarnContext(ctx, "directory profile lookup failed", slog.String("error", err.Error()))
		return nil
	}
	return profiles
}

func presenceOf(views map[string]models.PresenceView, uid string) models.PresenceView {
	if pv, ok := views[uid]; ok {
		return pv
	}
	return models.PresenceView{UID: uid}
}

func (p *Projection) removeWatcher(w *Watcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[w.uid]; ok {
		delete(e.watchers, w)
		if len(e.watchers) == 0 {
			delete(p.entries, w.uid)
		}
	}
	close(w.ch)
}
