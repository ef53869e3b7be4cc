// Package scene owns the authoritative scene state shared with the WebXR
// front end: object queries, serialized mutation with change events, id
// assignment, JSON persistence, and a file watcher for external edits.
package scene

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

// subscriberBuffer is the event buffer per subscriber. A subscriber that
// falls further behind than this loses events rather than blocking mutations.
const subscriberBuffer = 64

// Store is the authoritative set of scene objects. Reads run concurrently;
// mutations are serialized, and every successful mutation emits a change
// event to all subscribers after the write lock is released.
type Store struct {
	mu      sync.RWMutex
	objects []*types.SceneObject          // insertion order
	index   map[string]*types.SceneObject // id lookup
	issued  map[string]bool               // every id ever assigned; never reused
	counter map[string]int                // highest NN issued per normalized base name

	subMu  sync.RWMutex
	subs   map[int]chan types.ChangeEvent
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		index:   make(map[string]*types.SceneObject),
		issued:  make(map[string]bool),
		counter: make(map[string]int),
		subs:    make(map[int]chan types.ChangeEvent),
	}
}

// NewStoreFromObjects builds a store from a loaded snapshot.
// Fails on duplicate ids.
func NewStoreFromObjects(objects []types.SceneObject) (*Store, error) {
	s := NewStore()
	for i := range objects {
		obj := objects[i].Clone()
		if obj.ID == "" {
			return nil, fmt.Errorf("scene object %d (%q) has no id", i, obj.Name)
		}
		if _, dup := s.index[obj.ID]; dup {
			return nil, fmt.Errorf("duplicate scene object id %q", obj.ID)
		}
		s.objects = append(s.objects, &obj)
		s.index[obj.ID] = &obj
		s.recordIssued(obj.ID)
	}
	logging.Scene("store initialized with %d objects", len(objects))
	return s, nil
}

// GetByID returns a copy of the object, or false if the id is unknown.
func (s *Store) GetByID(id string) (types.SceneObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.index[id]
	if !ok {
		return types.SceneObject{}, false
	}
	return obj.Clone(), true
}

// FindByName returns all objects whose name contains the query,
// case-insensitively. May return zero, one, or many matches; ambiguity
// is the caller's problem.
func (s *Store) FindByName(query string) []types.SceneObject {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SceneObject
	for _, obj := range s.objects {
		if strings.Contains(strings.ToLower(obj.Name), q) {
			out = append(out, obj.Clone())
		}
	}
	return out
}

// FindByCategory returns all objects in the given category (exact,
// case-insensitive).
func (s *Store) FindByCategory(category string) []types.SceneObject {
	c := strings.ToLower(strings.TrimSpace(category))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SceneObject
	for _, obj := range s.objects {
		if strings.ToLower(obj.Category) == c {
			out = append(out, obj.Clone())
		}
	}
	return out
}

// FindNear returns all placed objects within radius (Euclidean) of pos.
func (s *Store) FindNear(pos types.Vector3, radius float64) []types.SceneObject {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.SceneObject
	for _, obj := range s.objects {
		if obj.Position == nil {
			continue
		}
		dx := obj.Position.X - pos.X
		dy := obj.Position.Y - pos.Y
		dz := obj.Position.Z - pos.Z
		if math.Sqrt(dx*dx+dy*dy+dz*dz) <= radius {
			out = append(out, obj.Clone())
		}
	}
	return out
}

// Snapshot returns a deep copy of every object in insertion order.
func (s *Store) Snapshot() []types.SceneObject {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SceneObject, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	return out
}

// Count returns the number of objects in the scene.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Add appends a new object and returns its id. When the object carries no id
// one is assigned from its name. Supplying an id that already exists is an
// error. Emits an "added" event on success.
func (s *Store) Add(obj types.SceneObject) (string, error) {
	c := obj.Clone()

	s.mu.Lock()
	if c.ID == "" {
		c.ID = s.nextIDLocked(c.Name)
	} else {
		if _, dup := s.index[c.ID]; dup {
			s.mu.Unlock()
			return "", fmt.Errorf("object id %q already exists", c.ID)
		}
		s.recordIssued(c.ID)
	}
	s.objects = append(s.objects, &c)
	s.index[c.ID] = &c
	s.mu.Unlock()

	logging.SceneDebug("added object %s (%s)", c.ID, c.Name)
	s.publish(types.ChangeEvent{Kind: types.ChangeAdded, ObjectID: c.ID, Name: c.Name, Payload: c.Clone()})
	return c.ID, nil
}

// Remove deletes the object. Returns false when the id is unknown, which
// makes repeated removal idempotent from the caller's perspective.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	obj, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.index, id)
	for i, o := range s.objects {
		if o == obj {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
	name := obj.Name
	s.mu.Unlock()

	logging.SceneDebug("removed object %s", id)
	s.publish(types.ChangeEvent{Kind: types.ChangeRemoved, ObjectID: id, Name: name})
	return true
}

// UpdatePosition merges a partial position update into the object.
// Axes not present in the update keep their current value; a pending object
// starts from the zero vector. Returns false if the id is unknown.
func (s *Store) UpdatePosition(id string, upd types.VectorUpdate) bool {
	s.mu.Lock()
	obj, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	base := types.Vector3{}
	if obj.Position != nil {
		base = *obj.Position
	}
	merged := upd.ApplyTo(base)
	obj.Position = &merged
	name := obj.Name
	s.mu.Unlock()

	logging.SceneDebug("position updated %s -> (%.3f, %.3f, %.3f)", id, merged.X, merged.Y, merged.Z)
	s.publish(types.ChangeEvent{Kind: types.ChangePositionUpdated, ObjectID: id, Name: name, Payload: merged})
	return true
}

// UpdateRotation merges a partial rotation update into the object.
// Same merge semantics as UpdatePosition.
func (s *Store) UpdateRotation(id string, upd types.VectorUpdate) bool {
	s.mu.Lock()
	obj, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	base := types.Vector3{}
	if obj.Rotation != nil {
		base = *obj.Rotation
	}
	merged := upd.ApplyTo(base)
	obj.Rotation = &merged
	name := obj.Name
	s.mu.Unlock()

	logging.SceneDebug("rotation updated %s -> (%.3f, %.3f, %.3f)", id, merged.X, merged.Y, merged.Z)
	s.publish(types.ChangeEvent{Kind: types.ChangeRotationUpdated, ObjectID: id, Name: name, Payload: merged})
	return true
}

// ReplaceAll swaps the whole object set, keeping the issued-id history so
// numbers are still never reused. Used when the front end rewrites the scene
// file out from under us. Emits no per-object events; callers broadcast a
// full snapshot instead.
func (s *Store) ReplaceAll(objects []types.SceneObject) error {
	index := make(map[string]*types.SceneObject, len(objects))
	list := make([]*types.SceneObject, 0, len(objects))
	for i := range objects {
		obj := objects[i].Clone()
		if obj.ID == "" {
			return fmt.Errorf("scene object %d (%q) has no id", i, obj.Name)
		}
		if _, dup := index[obj.ID]; dup {
			return fmt.Errorf("duplicate scene object id %q", obj.ID)
		}
		index[obj.ID] = &obj
		list = append(list, &obj)
	}

	s.mu.Lock()
	s.objects = list
	s.index = index
	for id := range index {
		s.recordIssued(id)
	}
	s.mu.Unlock()

	logging.Scene("scene replaced: %d objects", len(objects))
	return nil
}

// NextID assigns a fresh id for the given display name per the
// {normalized_name}_{NN} rule. The id is recorded as issued immediately, so
// pending objects that are never committed still keep their number.
func (s *Store) NextID(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked(name)
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// normalizeName turns a display name into an id base: lowercased,
// whitespace collapsed to underscores, everything else stripped.
func normalizeName(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = strings.Join(strings.Fields(base), "_")
	base = nonIdent.ReplaceAllString(base, "")
	if base == "" {
		base = "object"
	}
	return base
}

func (s *Store) nextIDLocked(name string) string {
	base := normalizeName(name)
	nn := s.counter[base] + 1
	for {
		id := fmt.Sprintf("%s_%02d", base, nn)
		if !s.issued[id] {
			if _, exists := s.index[id]; !exists {
				s.counter[base] = nn
				s.issued[id] = true
				return id
			}
		}
		nn++
	}
}

// recordIssued marks an externally supplied id as taken and advances the
// per-base counter past it, so generated ids never land below it.
func (s *Store) recordIssued(id string) {
	s.issued[id] = true
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return
	}
	nn, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return
	}
	base := id[:i]
	if nn > s.counter[base] {
		s.counter[base] = nn
	}
}

// Subscribe registers a change-event observer. The returned channel is
// buffered; events are dropped, never blocked on, when the buffer is full.
// Call the returned cancel function to unsubscribe and close the channel.
func (s *Store) Subscribe() (<-chan types.ChangeEvent, func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan types.ChangeEvent, subscriberBuffer)
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to all subscribers. Runs outside the store's
// write lock; a full subscriber buffer drops the event for that subscriber.
func (s *Store) publish(ev types.ChangeEvent) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			logging.Get(logging.CategoryBroadcast).Warn("subscriber buffer full, dropping %s event for %s", ev.Kind, ev.ObjectID)
		}
	}
}
