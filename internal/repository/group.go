package repository

import "sync"

// SnapshotGroup tracks the snapshot ids of one conversation as a dense,
// append-only log. Ids are minted in increasing order starting at 1. Once
// the group holds more than its maximum, the oldest added ids are
// evicted.
type SnapshotGroup struct {
	mu     sync.Mutex
	limit  int
	nextID int
	ids    []int
}

// NewSnapshotGroup returns an empty group bounded by limit, -1 meaning
// unlimited.
func NewSnapshotGroup(limit int) *SnapshotGroup {
	return &SnapshotGroup{limit: limit, nextID: 1}
}

// NextID mints the next snapshot id. Minted ids are never reused, even if
// they are never added.
func (g *SnapshotGroup) NextID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	return id
}

// Add records id as stored and returns the ids evicted to stay within the
// bound. Adding an id that is already present changes nothing.
func (g *SnapshotGroup) Add(id int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.indexOf(id) >= 0 {
		return nil
	}
	g.ids = append(g.ids, id)
	if id >= g.nextID {
		g.nextID = id + 1
	}

	if g.limit < 0 || len(g.ids) <= g.limit {
		return nil
	}
	n := len(g.ids) - g.limit
	evicted := append([]int(nil), g.ids[:n]...)
	g.ids = append(g.ids[:0], g.ids[n:]...)
	return evicted
}

func (g *SnapshotGroup) Contains(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.indexOf(id) >= 0
}

// Remove forgets id and reports whether it was present.
func (g *SnapshotGroup) Remove(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.indexOf(id)
	if i < 0 {
		return false
	}
	g.ids = append(g.ids[:i], g.ids[i+1:]...)
	return true
}

// Clear forgets every id and returns them, oldest first.
func (g *SnapshotGroup) Clear() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := g.ids
	g.ids = nil
	return ids
}

// IDs returns the stored ids, oldest first.
func (g *SnapshotGroup) IDs() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.ids...)
}

func (g *SnapshotGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}

func (g *SnapshotGroup) indexOf(id int) int {
	for i, v := range g.ids {
		if v == id {
			return i
		}
	}
	return -1
}
