// Package cache provides the two cache tiers used by the proxy.
//
// Both tiers share one key space produced by DeriveKey:
//
//   - Memory: bounded (DefaultMemoryMaxEntries), process lifetime, LRU eviction
//   - Disk: durable, one metadata record and one body blob per key
//
// An Entry is servable while now < ExpiresAt. Expiry is lazy: the memory tier
// reports expired entries as misses, the disk tier deletes them on lookup.
// No goroutine scans for expired entries.
//
// # Basic Usage
//
//	memory, err := cache.NewMemory(cache.MemoryConfig{TTL: 5 * time.Minute})
//	if err != nil {
//		return err
//	}
//
//	disk, err := cache.NewDisk(cache.DiskConfig{Dir: "/var/cache/proxyhades"})
//	if err != nil {
//		return err
//	}
//
//	key := cache.DeriveKey(req, cache.DefaultAuthParam)
//	if entry, ok := memory.Get(key); ok {
//		// serve entry
//	}
//	if entry, ok := disk.Read(key); ok {
//		memory.Put(key, entry.Headers, entry.Body)
//		// serve entry
//	}
//
// # Background Writes
//
// Disk writes after an upstream fetch go through a WriteQueue so the
// response is never held up by the filesystem:
//
//	writes := cache.NewWriteQueue(disk, cache.WriteQueueConfig{}, logger)
//	defer writes.Close()
//	writes.Enqueue(key, headers, body)
//
// # Metrics
//
//   - proxyhades_cache_hits_total{layer} - hits by layer (memory, disk)
//   - proxyhades_cache_misses_total - lookups that missed both layers
//   - proxyhades_cache_entries{layer="memory"} - memory tier size
//   - proxyhades_cache_evictions_total{layer="memory"} - bound enforcement
//   - proxyhades_cache_errors_total{operation} - swallowed I/O errors
//   - proxyhades_write_queue_dropped_total - dropped background writes
package cache
