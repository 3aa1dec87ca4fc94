package task

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrConfigLoad wraps any failure to read the task table when building a Queue.
	ErrConfigLoad = errors.New("could not load task configuration")

	// ErrUnknownTask is returned for ids the queue was never loaded with.
	ErrUnknownTask = errors.New("unknown task")
)

// PersistBackOff returns the retry policy used when persisting a completed run.
var PersistBackOff = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
}

type entry struct {
	row     Row
	key     Key
	queued  int
	retries int
	unsaved int
}

// Queue is the in-memory backlog of task ids, ordered by (Key, id).
// A row needing N more runs is queued N times.
// Queue is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	saveMu   sync.Mutex // serializes SaveUnsaved
	store    Store
	priority PriorityFunc
	entries  map[int]*entry
	ids      []int // load order, for listings
	heap     idHeap
}

// NewQueue loads every row from store and seeds the queue. A nil priority is ByID.
// Load failures are returned wrapped in ErrConfigLoad and are fatal to the caller.
func NewQueue(store Store, priority PriorityFunc) (*Queue, error) {
	if priority == nil {
		priority = ByID
	}
	q := &Queue{
		store:    store,
		priority: priority,
	}
	if err := q.Load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Load discards the current backlog and rebuilds it from the store.
func (q *Queue) Load() error {
	rows, err := q.store.LoadAll()
	if err != nil {
		return errors.Wrap(ErrConfigLoad, err.Error())
	}

	entries := make(map[int]*entry, len(rows))
	ids := make([]int, 0, len(rows))
	h := idHeap{}
	for _, r := range rows {
		if _, ok := entries[r.ID]; ok {
			return errors.Wrapf(ErrConfigLoad, "duplicate task id %d", r.ID)
		}
		e := &entry{row: r, key: q.priority(r)}
		entries[r.ID] = e
		ids = append(ids, r.ID)
		for i := 0; i < r.Remaining(); i++ {
			h = append(h, item{id: r.ID, key: e.key})
			e.queued++
		}
	}
	heap.Init(&h)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = entries
	q.ids = ids
	q.heap = h
	log.WithFields(
		log.Fields{
			"tasks":  len(rows),
			"queued": h.Len(),
		}).Info("Loaded task queue")
	return nil
}

// Next removes and returns the highest priority task. ok is false when the queue is empty.
func (q *Queue) Next() (id int, config Config, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return 0, nil, false
	}
	it := heap.Pop(&q.heap).(item)
	e := q.entries[it.id]
	e.queued--
	return it.id, append(Config(nil), e.row.Config...), true
}

// PutBack re-queues id with the key it was loaded with. There is no limit on
// how many times a task may be put back.
func (q *Queue) PutBack(id int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		log.WithFields(
			log.Fields{
				"taskID": id,
			}).Error("Refusing to put back unknown task")
		return errors.Wrapf(ErrUnknownTask, "task %d", id)
	}
	heap.Push(&q.heap, item{id: id, key: e.key})
	e.queued++
	e.retries++
	return nil
}

// MarkRunComplete persists one more completed run for id. The live queue is
// not touched, the id already left it when dispatched. If every retry fails
// the run is kept as unsaved: it counts towards the task's status and
// SaveUnsaved persists it later.
func (q *Queue) MarkRunComplete(id int) error {
	q.mu.Lock()
	_, known := q.entries[id]
	q.mu.Unlock()
	if !known {
		return errors.Wrapf(ErrUnknownTask, "task %d", id)
	}

	try := 1
	err := backoff.Retry(func() error {
		err := q.store.IncrementRunCount(id)
		if err != nil {
			log.WithFields(
				log.Fields{
					"taskID": id,
					"try":    try,
					"err":    err,
				}).Warn("Failed to persist completed run")
		}
		try++
		return err
	}, PersistBackOff())

	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		q.entries[id].unsaved++
		return errors.Wrapf(err, "persisting run of task %d", id)
	}
	q.entries[id].row.RunCount++
	return nil
}

// Unsaved is the number of completed runs that failed to persist.
func (q *Queue) Unsaved() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		n += e.unsaved
	}
	return n
}

// SaveUnsaved makes one attempt to persist each unsaved run and returns how
// many are still unsaved.
func (q *Queue) SaveUnsaved() int {
	q.saveMu.Lock()
	defer q.saveMu.Unlock()

	type unsavedRuns struct{ id, n int }
	q.mu.Lock()
	var pending []unsavedRuns
	for _, id := range q.ids {
		if n := q.entries[id].unsaved; n > 0 {
			pending = append(pending, unsavedRuns{id, n})
		}
	}
	q.mu.Unlock()

	left := 0
	for _, p := range pending {
		id := p.id
		for n := p.n; n > 0; n-- {
			if err := q.store.IncrementRunCount(id); err != nil {
				log.WithFields(
					log.Fields{
						"taskID": id,
						"err":    err,
					}).Warn("Failed to persist unsaved run")
				left += n
				break
			}
			q.mu.Lock()
			q.entries[id].unsaved--
			q.entries[id].row.RunCount++
			q.mu.Unlock()
		}
	}
	return left
}

// Len is the number of task copies waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Task returns the listing view of one task.
func (q *Queue) Task(id int) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return Task{}, false
	}
	return e.view(), true
}

// Tasks lists every loaded task in load order.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.ids))
	for _, id := range q.ids {
		out = append(out, q.entries[id].view())
	}
	return out
}

// Pending returns queued ids in the order Next would return them.
func (q *Queue) Pending() []int {
	q.mu.Lock()
	items := append(idHeap(nil), q.heap...)
	q.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items.less(items[i], items[j]) })
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

func (e *entry) view() Task {
	status := Pending
	if e.row.Remaining() <= e.unsaved {
		status = Completed
	}
	required := e.row.RequiredRuns
	if required < 1 {
		required = 1
	}
	return Task{
		ID:           e.row.ID,
		Config:       append(Config(nil), e.row.Config...),
		RunCount:     e.row.RunCount,
		RequiredRuns: required,
		Status:       status,
		Queued:       e.queued,
		Retries:      e.retries,
		Unsaved:      e.unsaved,
	}
}

type item struct {
	id  int
	key Key
}

// idHeap implements heap.Interface, ordered by key then id.
type idHeap []item

func (h idHeap) less(a, b item) bool {
	if c := a.key.Compare(b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h.less(h[i], h[j]) }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
