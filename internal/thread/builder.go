package thread

// Placement is one display instruction: show ID, nested under ParentID
// when it is set.
type Placement struct {
	ID       string
	ParentID string
}

// Builder tracks reply edges and orphan buckets. It is not safe for
// concurrent use; the engine drives it from its loop.
type Builder struct {
	edges   map[string]string   // reply id -> parent id
	orphans map[string][]string // parent id -> waiting reply ids, arrival order
	waiting map[string]string   // orphan reply id -> parent id it waits on
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		edges:   make(map[string]string),
		orphans: make(map[string][]string),
		waiting: make(map[string]string),
	}
}

// Attach records event id with its resolved parent. present reports whether an
// id is already displayed. If the event can be displayed now, the returned
// placements start with it and continue with every orphan it unlocks,
// recursively, in arrival order. Otherwise it is filed as an orphan and
// Attach returns nil; newBucket reports whether this is the first orphan
// waiting on parentID.
func (b *Builder) Attach(id, parentID string, present func(string) bool) (placements []Placement, newBucket bool) {
	if _, dup := b.edges[id]; dup {
		return nil, false
	}
	if _, dup := b.waiting[id]; dup {
		return nil, false
	}

	if parentID != "" {
		b.edges[id] = parentID
		if !present(parentID) {
			newBucket = len(b.orphans[parentID]) == 0
			b.orphans[parentID] = append(b.orphans[parentID], id)
			b.waiting[id] = parentID
			return nil, newBucket
		}
	}

	placements = append(placements, Placement{ID: id, ParentID: parentID})
	return b.drain(placements, id), false
}

func (b *Builder) drain(placements []Placement, id string) []Placement {
	queue := []string{id}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		bucket, ok := b.orphans[parent]
		if !ok {
			continue
		}
		delete(b.orphans, parent)
		for _, child := range bucket {
			delete(b.waiting, child)
			placements = append(placements, Placement{ID: child, ParentID: parent})
			queue = append(queue, child)
		}
	}
	return placements
}

// Parent returns the recorded parent of id
func (b *Builder) Parent(id string) (string, bool) {
	p, ok := b.edges[id]
	return p, ok
}

// IsOrphan reports whether id is waiting on a missing parent
func (b *Builder) IsOrphan(id string) bool {
	_, ok := b.waiting[id]
	return ok
}

// Orphans returns the reply ids waiting on parentID, in arrival order
func (b *Builder) Orphans(parentID string) []string {
	return append([]string(nil), b.orphans[parentID]...)
}

// Remove drops id's edge, the orphan bucket keyed on id, and id from its
// parent's bucket. Replies that were waiting in id's bucket stay cached by
// the caller but lose the bucket, so they are never displayed.
func (b *Builder) Remove(id string) {
	if parent, ok := b.waiting[id]; ok {
		bucket := b.orphans[parent]
		for i, child := range bucket {
			if child == id {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		if len(bucket) == 0 {
			delete(b.orphans, parent)
		} else {
			b.orphans[parent] = bucket
		}
		delete(b.waiting, id)
	}
	for _, child := range b.orphans[id] {
		delete(b.waiting, child)
	}
	delete(b.orphans, id)
	delete(b.edges, id)
}

// Stats returns the number of edges, orphan buckets and waiting replies
func (b *Builder) Stats() (edges, buckets, waiting int) {
	return len(b.edges), len(b.orphans), len(b.waiting)
}
