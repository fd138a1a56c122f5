// Package cache deduplicates state blobs uploaded into a pool.
//
// Every hardware state record or compiled kernel is looked up by its key
// bytes before upload. Identical keys resolve to the same pool offset, so a
// pipeline that flips between a handful of states only ever uploads each of
// them once per pool epoch.
//
//	c := cache.New(func(id cache.ID) { dirty.Cache |= 1 << id })
//	c.Register(idCCUnit, "CC_UNIT", gsPool)
//	off, err := c.LookupOrInsert(idCCUnit, key, payload, nil)
//
// # Invalidation
//
// The cache attaches itself to every pool it allocates from. Invalidating
// any of those pools empties the cache, and the next lookup of each id
// reports a new offset through the notify callback.
//
// # Thread Safety
//
// Cache is owned by a single driver context and is not safe for concurrent
// use.
package cache
