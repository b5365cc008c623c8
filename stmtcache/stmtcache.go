// Package stmtcache is a cache of server side prepared statement names keyed by SQL.
//
// Entries are evicted in insertion order, not by recency of use. Cache state is
// partitioned by process id: a process that does not own the current partition
// (e.g. a forked child) sees an empty cache and a fresh name counter, and never
// deallocates statements it did not prepare. Names issued by such a process
// carry its pid (stmt_<pid>_<n>) so they never collide with the names of the
// process that created the cache (stmt_<n>).
package stmtcache

import (
	"container/list"
	"context"
	"os"
	"strconv"
)

// NamePrefix is prepended to the sequence number of every generated statement name.
const NamePrefix = "stmt_"

// Deallocator releases prepared statements on the server.
type Deallocator interface {
	// Deallocate releases the prepared statement name.
	Deallocate(ctx context.Context, name string) error

	// IsLive reports whether the connection can still reach the server.
	IsLive() bool
}

type entry struct {
	key  string
	name string
}

type partition struct {
	pid    int
	prefix string
	count  uint64
	m      map[string]*list.Element
	l      *list.List
}

func newPartition(pid int, prefix string) *partition {
	return &partition{
		pid:    pid,
		prefix: prefix,
		m:      make(map[string]*list.Element),
		l:      list.New(),
	}
}

// Cache maps SQL keys to prepared statement names. It is not safe for concurrent use.
type Cache struct {
	conn   Deallocator
	cap    int
	getpid func() int
	part   *partition
}

// New creates a new Cache that deallocates statements through conn. cap is the maximum size of the cache.
func New(conn Deallocator, cap int) *Cache {
	mustBeValidCap(cap)

	c := &Cache{
		conn:   conn,
		cap:    cap,
		getpid: os.Getpid,
	}
	c.part = newPartition(c.getpid(), NamePrefix)

	return c
}

// Lookup returns the statement name cached for key.
func (c *Cache) Lookup(key string) (string, bool) {
	el, ok := c.current().m[key]
	if !ok {
		return "", false
	}
	return el.Value.(*entry).name, true
}

// Insert stores name under key. If the cache is full the oldest entry is removed and its statement deallocated.
// Inserting a key that is already present replaces its name in place and deallocates the old statement.
func (c *Cache) Insert(ctx context.Context, key, name string) {
	p := c.current()

	if el, ok := p.m[key]; ok {
		e := el.Value.(*entry)
		if e.name != name {
			c.deallocate(ctx, e.name)
			e.name = name
		}
		return
	}

	for p.l.Len() >= c.cap {
		c.removeOldest(ctx, p)
	}

	p.m[key] = p.l.PushFront(&entry{key: key, name: name})
}

// Delete removes key from the cache and deallocates its statement. Does nothing if key is not present.
func (c *Cache) Delete(ctx context.Context, key string) {
	p := c.current()

	el, ok := p.m[key]
	if !ok {
		return
	}
	p.l.Remove(el)
	delete(p.m, key)
	c.deallocate(ctx, el.Value.(*entry).name)
}

// Clear removes all entries in the cache. Statements are deallocated from the server session while the connection is
// live.
func (c *Cache) Clear(ctx context.Context) {
	p := c.current()
	for p.l.Len() > 0 {
		c.removeOldest(ctx, p)
	}
}

// NextHandleName returns a statement name that has not been issued before by this process or by any other process
// sharing the cache.
func (c *Cache) NextHandleName() string {
	p := c.current()
	p.count++
	return p.prefix + strconv.FormatUint(p.count, 10)
}

// Len returns the number of cached statements.
func (c *Cache) Len() int {
	return c.current().l.Len()
}

// Cap returns the maximum number of cached statements.
func (c *Cache) Cap() int {
	return c.cap
}

// Keys returns the cached keys, oldest first.
func (c *Cache) Keys() []string {
	p := c.current()
	keys := make([]string, 0, p.l.Len())
	for el := p.l.Back(); el != nil; el = el.Prev() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// current returns the partition owned by the calling process, starting a new one if the process id changed.
func (c *Cache) current() *partition {
	if pid := c.getpid(); pid != c.part.pid {
		c.part = newPartition(pid, NamePrefix+strconv.Itoa(pid)+"_")
	}
	return c.part
}

func (c *Cache) removeOldest(ctx context.Context, p *partition) {
	oldest := p.l.Back()
	p.l.Remove(oldest)
	e := oldest.Value.(*entry)
	delete(p.m, e.key)
	c.deallocate(ctx, e.name)
}

// deallocate is best effort. Failures and dead connections leave nothing to clean up locally.
func (c *Cache) deallocate(ctx context.Context, name string) {
	if !c.conn.IsLive() {
		return
	}
	_ = c.conn.Deallocate(ctx, name)
}

func mustBeValidCap(cap int) {
	if cap < 1 {
		panic("cache must have cap of >= 1")
	}
}
