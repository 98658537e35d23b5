package scheduler

import "container/heap"

// Bucket is a coarsened due-horizon partition of pending tasks.
type Bucket uint8

const (
	BucketHour  Bucket = iota // due within HourHorizon
	BucketDay                 // due within DayHorizon
	BucketMonth               // due within MonthHorizon
	BucketFar                 // grouped by month slot, not examined per tick
	NumBuckets
)

// Horizons in simulated minutes.
const (
	HourHorizon  = 60
	DayHorizon   = 1440
	MonthHorizon = 43200 // 30 days
	// FarSlotSpan is the width of one far-future slot.
	FarSlotSpan = MonthHorizon
)

func (b Bucket) String() string {
	switch b {
	case BucketHour:
		return "hour"
	case BucketDay:
		return "day"
	case BucketMonth:
		return "month"
	case BucketFar:
		return "far"
	default:
		return "unknown"
	}
}

// Counts holds the number of pending tasks per bucket.
type Counts [NumBuckets]int

// Total sums every bucket.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

type entry struct {
	task   Task
	bucket Bucket
	index  int    // position in its heap or far slot
	slot   uint64 // far slot key, valid when bucket == BucketFar
}

func (e *entry) before(o *entry) bool {
	if e.task.Spec.DueAt != o.task.Spec.DueAt {
		return e.task.Spec.DueAt < o.task.Spec.DueAt
	}
	return e.task.ID < o.task.ID
}

// entryHeap orders entries by (due, id) and tracks each entry's index so
// cancellation can remove from the middle.
type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].before(h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h entryHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// farSlot holds the far entries of one month-wide slot.
type farSlot struct {
	key     uint64
	entries []*entry
	index   int // position in slotHeap
}

// slotHeap orders live slots by key. A slot leaves the heap as soon as it
// empties, so the heap never holds more keys than there are live slots.
type slotHeap []*farSlot

func (h slotHeap) Len() int           { return len(h) }
func (h slotHeap) Less(i, j int) bool { return h[i].key < h[j].key }

func (h slotHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *slotHeap) Push(x any) {
	sl := x.(*farSlot)
	sl.index = len(*h)
	*h = append(*h, sl)
}

func (h *slotHeap) Pop() any {
	old := *h
	n := len(old)
	sl := old[n-1]
	old[n-1] = nil
	sl.index = -1
	*h = old[:n-1]
	return sl
}

// farBuckets stores far-future tasks unsorted within month-wide slots.
type farBuckets struct {
	slots map[uint64]*farSlot
	keys  slotHeap
	size  int
}

func newFarBuckets() *farBuckets {
	return &farBuckets{slots: make(map[uint64]*farSlot)}
}

func slotOf(due uint64) uint64 { return due / FarSlotSpan }

// slotEnd is the last minute covered by slot k.
func slotEnd(k uint64) uint64 { return (k+1)*FarSlotSpan - 1 }

func (f *farBuckets) add(e *entry) {
	k := slotOf(e.task.Spec.DueAt)
	sl, ok := f.slots[k]
	if !ok {
		sl = &farSlot{key: k}
		f.slots[k] = sl
		heap.Push(&f.keys, sl)
	}
	e.bucket = BucketFar
	e.slot = k
	e.index = len(sl.entries)
	sl.entries = append(sl.entries, e)
	f.size++
}

func (f *farBuckets) remove(e *entry) {
	sl := f.slots[e.slot]
	last := len(sl.entries) - 1
	sl.entries[e.index] = sl.entries[last]
	sl.entries[e.index].index = e.index
	sl.entries[last] = nil
	sl.entries = sl.entries[:last]
	if len(sl.entries) == 0 {
		heap.Remove(&f.keys, sl.index)
		delete(f.slots, e.slot)
	}
	e.index = -1
	f.size--
}

// release removes and returns every slot lying wholly at or before limit.
func (f *farBuckets) release(limit uint64) []*entry {
	var out []*entry
	for f.keys.Len() > 0 && slotEnd(f.keys[0].key) <= limit {
		sl := heap.Pop(&f.keys).(*farSlot)
		delete(f.slots, sl.key)
		f.size -= len(sl.entries)
		out = append(out, sl.entries...)
	}
	return out
}

// earliest returns the soonest far entry, scanning only the first slot.
func (f *farBuckets) earliest() *entry {
	if f.keys.Len() == 0 {
		return nil
	}
	var best *entry
	for _, e := range f.keys[0].entries {
		if best == nil || e.before(best) {
			best = e
		}
	}
	return best
}
