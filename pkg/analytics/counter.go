package analytics

import (
	"encoding/json"
	"sort"
)

// DefaultTopN is the number of entries returned by Top when n <= 0.
const DefaultTopN = 10

// Item is one key and its count.
type Item struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Counter counts keys and remembers the order in which they were first seen,
// so ties in Top resolve the same way on every run.
type Counter struct {
	counts map[string]int
	order  []string
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Add increments key by one.
func (c *Counter) Add(key string) {
	c.AddN(key, 1)
}

// AddN increments key by n.
func (c *Counter) AddN(key string, n int) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// Get returns the count for key.
func (c *Counter) Get(key string) int {
	return c.counts[key]
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int {
	return len(c.order)
}

// Items returns every key in first-seen order.
func (c *Counter) Items() []Item {
	items := make([]Item, len(c.order))
	for i, k := range c.order {
		items[i] = Item{Key: k, Count: c.counts[k]}
	}
	return items
}

// Top returns the n most frequent keys, count descending, ties broken by
// first-seen order.
func (c *Counter) Top(n int) []Item {
	if n <= 0 {
		n = DefaultTopN
	}
	items := c.Items()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// Map returns a copy of the counts.
func (c *Counter) Map() map[string]int {
	m := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		m[k] = v
	}
	return m
}

// MarshalJSON encodes the counter as a key→count object.
func (c *Counter) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}
