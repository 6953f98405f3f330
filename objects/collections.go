package objects

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"
)

// Dictionary is an insertion-ordered mapping with unique keys, serialized
// as <DCT>. Keys must be comparable.
type Dictionary struct {
	keys   []interface{}
	values map[interface{}]interface{}
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[interface{}]interface{})}
}

// Set adds or replaces the value for key. A replaced key keeps its position.
func (d *Dictionary) Set(key, value interface{}) error {
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return fmt.Errorf("%w: %T", ErrUncomparableKey, key)
	}
	if d.values == nil {
		d.values = make(map[interface{}]interface{})
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return nil
}

// Get returns the value stored for key.
func (d *Dictionary) Get(key interface{}) (interface{}, bool) {
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Delete removes key.
func (d *Dictionary) Delete(key interface{}) {
	if _, ok := d.Get(key); !ok {
		return
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k interface{}) bool { return k == key })
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.keys) }

// Keys returns the keys in insertion order.
func (d *Dictionary) Keys() []interface{} { return slices.Clone(d.keys) }

// All iterates over the entries in insertion order.
func (d *Dictionary) All() iter.Seq2[interface{}, interface{}] {
	return func(yield func(interface{}, interface{}) bool) {
		for _, k := range d.keys {
			if !yield(k, d.values[k]) {
				return
			}
		}
	}
}

// Stack is a LIFO list serialized as <STK>. Items are kept bottom first.
type Stack struct {
	items []interface{}
}

// NewStack returns a stack holding items, the last one on top.
func NewStack(items ...interface{}) *Stack {
	return &Stack{items: slices.Clone(items)}
}

// Push adds v on top.
func (s *Stack) Push(v interface{}) { s.items = append(s.items, v) }

// Pop removes and returns the top item.
func (s *Stack) Pop() (interface{}, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, true
}

// Peek returns the top item without removing it.
func (s *Stack) Peek() (interface{}, bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	return s.items[len(s.items)-1], true
}

// Len returns the number of items.
func (s *Stack) Len() int { return len(s.items) }

// Items returns the items bottom first.
func (s *Stack) Items() []interface{} { return slices.Clone(s.items) }

// Queue is a FIFO queue serialized as <QUE>. It is safe for concurrent use.
//
// Serializing a queue drains it. When an item cannot be serialized the
// drained items are put back at the head and the queue is left as it was.
type Queue struct {
	mu    sync.Mutex
	items []interface{}
}

// NewQueue returns a queue holding items, the first one at the head.
func NewQueue(items ...interface{}) *Queue {
	return &Queue{items: slices.Clone(items)}
}

// Enqueue appends v at the tail.
func (q *Queue) Enqueue(v interface{}) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// TryDequeue removes the head item without blocking.
func (q *Queue) TryDequeue() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return v, true
}

// Drain removes and returns every queued item, head first.
func (q *Queue) Drain() []interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// PushFront puts items back at the head, items[0] first.
func (q *Queue) PushFront(items ...interface{}) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(slices.Clone(items), q.items...)
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
