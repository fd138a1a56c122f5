package cache

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/pool"
)

// Cache errors.
var (
	// ErrUnknownID is returned for an id that was never registered.
	ErrUnknownID = errors.New("cache: unknown id")

	// ErrEmptyKey is returned for a zero-length key.
	ErrEmptyKey = errors.New("cache: empty key")
)

// MaxIDs is the number of distinct cache ids.
const MaxIDs = 64

const (
	initialBuckets = 16
	maxLoad        = 2

	fnvOffset = 2166136261
	fnvPrime  = 16777619
)

// ID identifies one kind of cached object. Each id allocates from one pool
// and has its own uploaded-object alignment.
type ID uint8

// Notify is called whenever an id resolves to an offset different from the
// one it resolved to last time.
type Notify func(id ID)

type bucket struct {
	id     ID
	hash   uint32
	key    []byte
	offset uint32
	size   uint32
	aux    any
	next   *bucket
}

type idInfo struct {
	name       string
	pool       *pool.Pool
	align      uint32
	lastOffset uint32
	haveLast   bool
}

// Cache is a chained hash table of uploaded state keyed by content.
type Cache struct {
	buckets []*bucket
	n       int
	ids     [MaxIDs]*idInfo
	notify  Notify

	stats Stats
}

// Stats contains cache counters.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Buckets is the current table size.
	Buckets int
	// Hits is the number of lookups served without upload.
	Hits uint64
	// Misses is the number of lookups that uploaded.
	Misses uint64
	// Uploads is the total number of bytes uploaded.
	Uploads uint64
	// Clears is the number of times the cache was emptied.
	Clears uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Cache[%d entries/%d buckets, %d hits, %d misses, %d bytes, %d clears]",
		s.Len, s.Buckets, s.Hits, s.Misses, s.Uploads, s.Clears)
}

// New creates an empty cache. notify may be nil.
func New(notify Notify) *Cache {
	return &Cache{
		buckets: make([]*bucket, initialBuckets),
		notify:  notify,
	}
}

// Register binds id to a pool. Objects of that id are uploaded with the
// given alignment. The cache attaches itself to the pool so that pool
// invalidation empties it.
func (c *Cache) Register(id ID, name string, p *pool.Pool, align uint32) {
	if int(id) >= MaxIDs {
		panic(fmt.Sprintf("cache: id %d out of range", id))
	}
	attached := false
	for _, info := range c.ids {
		if info != nil && info.pool == p {
			attached = true
			break
		}
	}
	if !attached {
		p.Attach(c)
	}
	c.ids[id] = &idInfo{name: name, pool: p, align: max(align, 4)}
}

// Name returns the registered name of id.
func (c *Cache) Name(id ID) string {
	if int(id) < MaxIDs && c.ids[id] != nil {
		return c.ids[id].name
	}
	return fmt.Sprintf("ID(%d)", id)
}

func hashKey(id ID, key []byte) uint32 {
	h := uint32(fnvOffset)
	h ^= uint32(id)
	h *= fnvPrime
	for _, b := range key {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

func (c *Cache) info(id ID) (*idInfo, error) {
	if int(id) >= MaxIDs || c.ids[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return c.ids[id], nil
}

func (c *Cache) find(id ID, hash uint32, key []byte) *bucket {
	for b := c.buckets[hash&uint32(len(c.buckets)-1)]; b != nil; b = b.next {
		if b.hash == hash && b.id == id && bytes.Equal(b.key, key) {
			return b
		}
	}
	return nil
}

// Lookup returns the offset and aux value stored for (id, key) without
// uploading anything.
func (c *Cache) Lookup(id ID, key []byte) (offset uint32, aux any, ok bool) {
	info, err := c.info(id)
	if err != nil {
		return 0, nil, false
	}
	b := c.find(id, hashKey(id, key), key)
	if b == nil {
		return 0, nil, false
	}
	c.stats.Hits++
	c.resolved(id, info, b.offset)
	return b.offset, b.aux, true
}

// LookupOrInsert returns the pool offset of the object identified by
// (id, key). On a miss it allocates space in the id's pool, uploads payload
// and records aux alongside the entry. A nil payload uploads key.
func (c *Cache) LookupOrInsert(id ID, key, payload []byte, aux any) (uint32, error) {
	if len(key) == 0 {
		return 0, ErrEmptyKey
	}
	info, err := c.info(id)
	if err != nil {
		return 0, err
	}
	hash := hashKey(id, key)
	if b := c.find(id, hash, key); b != nil {
		c.stats.Hits++
		c.resolved(id, info, b.offset)
		return b.offset, nil
	}

	if payload == nil {
		payload = key
	}
	offset, err := info.pool.Alloc(uint32(len(payload)), info.align)
	if err != nil {
		return 0, fmt.Errorf("cache %s: %w", info.name, err)
	}
	if err := info.pool.Upload(offset, payload); err != nil {
		return 0, fmt.Errorf("cache %s: %w", info.name, err)
	}

	c.insert(&bucket{
		id:     id,
		hash:   hash,
		key:    bytes.Clone(key),
		offset: offset,
		size:   uint32(len(payload)),
		aux:    aux,
	})
	c.stats.Misses++
	c.stats.Uploads += uint64(len(payload))
	c.resolved(id, info, offset)
	return offset, nil
}

// Aux returns the aux value stored with (id, key).
func (c *Cache) Aux(id ID, key []byte) (any, bool) {
	b := c.find(id, hashKey(id, key), key)
	if b == nil {
		return nil, false
	}
	return b.aux, true
}

func (c *Cache) resolved(id ID, info *idInfo, offset uint32) {
	if info.haveLast && info.lastOffset == offset {
		return
	}
	info.lastOffset = offset
	info.haveLast = true
	if c.notify != nil {
		c.notify(id)
	}
}

func (c *Cache) insert(b *bucket) {
	if c.n+1 > len(c.buckets)*maxLoad {
		c.grow()
	}
	slot := b.hash & uint32(len(c.buckets)-1)
	b.next = c.buckets[slot]
	c.buckets[slot] = b
	c.n++
}

func (c *Cache) grow() {
	old := c.buckets
	c.buckets = make([]*bucket, len(old)*2)
	mask := uint32(len(c.buckets) - 1)
	for _, head := range old {
		for b := head; b != nil; {
			next := b.next
			slot := b.hash & mask
			b.next = c.buckets[slot]
			c.buckets[slot] = b
			b = next
		}
	}
}

// Clear drops every entry and forgets the last offset of every id, so the
// next resolution of each id notifies.
func (c *Cache) Clear() {
	clear(c.buckets)
	c.n = 0
	for _, info := range c.ids {
		if info != nil {
			info.haveLast = false
		}
	}
	c.stats.Clears++
}

// Len returns the number of entries.
func (c *Cache) Len() int { return c.n }

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	s := c.stats
	s.Len = c.n
	s.Buckets = len(c.buckets)
	return s
}
