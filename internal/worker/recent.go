package worker

import (
	"container/list"
	"sync"
	"time"
)

// recentSet remembers recently exported transaction ids so a message and
// the sweep racing on the same row export it once. Entries expire after ttl
// and the least recently touched id is evicted past maxSize.
type recentSet struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[int64]*list.Element
	lru     *list.List
	now     func() time.Time
}

type recentItem struct {
	id        int64
	expiresAt time.Time
}

func newRecentSet(maxSize int, ttl time.Duration) *recentSet {
	return &recentSet{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[int64]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

func (r *recentSet) Has(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.items[id]
	if !ok {
		return false
	}
	if r.now().After(elem.Value.(*recentItem).expiresAt) {
		r.remove(elem)
		return false
	}
	r.lru.MoveToFront(elem)
	return true
}

func (r *recentSet) Add(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := &recentItem{id: id, expiresAt: r.now().Add(r.ttl)}
	if elem, ok := r.items[id]; ok {
		elem.Value = item
		r.lru.MoveToFront(elem)
		return
	}
	r.items[id] = r.lru.PushFront(item)
	if r.lru.Len() > r.maxSize {
		r.remove(r.lru.Back())
	}
}

func (r *recentSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *recentSet) remove(elem *list.Element) {
	delete(r.items, elem.Value.(*recentItem).id)
	r.lru.Remove(elem)
}
