package engine

import (
	"SynthLedger/internal/observability"
	"container/list"

	"github.com/rs/zerolog"
)

// IdempotencyChecker implements two-tier deduplication of request ids
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU holding the receipt of each recent request
	lru *IdempotencyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
	log     zerolog.Logger
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(requestID string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics, log zerolog.Logger) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
		log:       log,
	}
}

// Lookup checks whether requestID was already committed. The receipt is
// returned when the LRU still holds it; a Postgres-only hit returns a bare
// receipt carrying just the request id.
func (ic *IdempotencyChecker) Lookup(requestID string) (Receipt, bool) {
	// Tier 1: LRU check (hot path)
	if r, ok := ic.lru.Get(requestID); ok {
		ic.record("lru")
		return r, true
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(requestID)
		if err != nil {
			// Conservative: assume not duplicate so a DB issue cannot block
			// commands. The event log's unique key still rejects the write.
			ic.log.Warn().Err(err).Str("request_id", requestID).Msg("tier-2 dedup lookup failed")
			if ic.metrics != nil {
				ic.metrics.DedupTier2Errors.Inc()
			}
			return Receipt{}, false
		}

		if isDup {
			ic.record("postgres")
			r := Receipt{RequestID: requestID}
			// Add to LRU so we don't hit DB again
			ic.lru.Add(requestID, r)
			return r, true
		}
	}

	return Receipt{}, false
}

// MarkProcessed adds the receipt to the LRU after a successful commit
func (ic *IdempotencyChecker) MarkProcessed(r Receipt) {
	before := ic.lru.Evictions()
	ic.lru.Add(r.RequestID, r)
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
		ic.metrics.DedupLRUEvictions.Add(float64(ic.lru.Evictions() - before))
	}
}

// Warm loads recently committed request ids, e.g. from the event log on
// restart.
func (ic *IdempotencyChecker) Warm(requestIDs []string) {
	ic.lru.WarmFromKeys(requestIDs)
}

func (ic *IdempotencyChecker) record(tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(tier).Inc()
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache of request receipts.
// Not thread-safe: only accessed under the engine's operation guard.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64 // For metrics
}

type lruEntry struct {
	key     string
	receipt Receipt
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Get returns the receipt for key (promotes to front)
func (lru *IdempotencyLRU) Get(key string) (Receipt, bool) {
	elem, exists := lru.cache[key]
	if !exists {
		return Receipt{}, false
	}
	lru.lruList.MoveToFront(elem)
	return elem.Value.(*lruEntry).receipt, true
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	_, ok := lru.Get(key)
	return ok
}

// Add inserts a key (or promotes and replaces if it exists)
func (lru *IdempotencyLRU) Add(key string, r Receipt) {
	if elem, exists := lru.cache[key]; exists {
		elem.Value.(*lruEntry).receipt = r
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key, receipt: r})
	lru.cache[key] = elem

	// Evict if over capacity
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// WarmFromKeys loads a batch of request ids into the LRU with bare
// receipts. Keys are given oldest first.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		lru.Add(key, Receipt{RequestID: key})
	}
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics)
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
