// Package cache implements a Window-TinyLFU block cache: new reads enter
// a small LRU admission window, survivors are promoted into a segmented
// LRU (probation/protected) gated by a frequency sketch and a doorkeeper
// bloom filter. Adapted from the teacher's utils/cache package — the
// structure (windowLRU + segmentedLRU + cmSketch + doorkeeper) is carried
// near-verbatim, comments translated to English, and the public surface
// narrowed from the teacher's generic interface{} cache to the decoded
// StoreFile record cache SPEC_FULL 11 calls for (storefile's concreteFile
// caches decoded (Key, Value) pairs by file offset, avoiding a re-decode
// of hot blocks on repeated Get/Scan against the same file).
package cache

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// windowPercent is the fraction of total capacity given to the admission
// window; the remainder splits 20/80 between probation and protected,
// the ratios the teacher's NewCache uses.
const windowPercent = 1

// BlockCache is a fixed-capacity cache keyed by arbitrary bytes. Entries
// is the maximum number of items the cache holds across all three tiers.
type BlockCache struct {
	mu sync.Mutex

	window    *windowLRU
	segmented *segmentedLRU
	door      *doorkeeper
	sketch    *cmSketch

	total     int32
	threshold int32

	data map[uint64]*list.Element
}

// New creates a BlockCache sized for entries items.
func New(entries int) *BlockCache {
	if entries < 3 {
		entries = 3
	}
	windowSize := (windowPercent * entries) / 100
	if windowSize < 1 {
		windowSize = 1
	}
	segmentedSize := entries - windowSize
	a1Size := int(0.2 * float64(segmentedSize))
	if a1Size < 1 {
		a1Size = 1
	}

	data := make(map[uint64]*list.Element, entries)
	return &BlockCache{
		window:    newWindowLRU(windowSize, data),
		segmented: newSLRU(data, a1Size, segmentedSize-a1Size),
		door:      newDoorkeeper(entries, 0.01),
		sketch:    newCmSketch(int64(entries)),
		threshold: int32(entries) * 10,
		data:      data,
	}
}

func (c *BlockCache) toHash(key []byte) (uint64, uint64) {
	return xxhash.Sum64(key), xxhash.Sum64(append([]byte{0xff}, key...))
}

// Set inserts value under key, running the full window -> probation ->
// protected admission pipeline.
func (c *BlockCache) Set(key []byte, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *BlockCache) set(key []byte, value interface{}) {
	keyHash, conflict := c.toHash(key)
	item := storeItem{stage: stageWindow, key: keyHash, conflict: conflict, value: value}

	eitem, evicted := c.window.add(item)
	if !evicted {
		return
	}

	vitem := c.segmented.victim()
	if vitem == nil {
		c.segmented.add(eitem)
		return
	}

	if !c.door.allow(uint32(eitem.key)) {
		return
	}

	vcount := c.sketch.GetEstimate(vitem.key)
	ocount := c.sketch.GetEstimate(eitem.key)
	if vcount > ocount {
		return
	}
	c.segmented.add(eitem)
}

// Get returns the cached value for key, promoting it within whichever
// tier holds it.
func (c *BlockCache) Get(key []byte) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

func (c *BlockCache) get(key []byte) (interface{}, bool) {
	c.total++
	if c.total >= c.threshold {
		c.sketch.Reset()
		c.door.reset()
		c.total = 0
	}

	keyHash, conflict := c.toHash(key)
	element, ok := c.data[keyHash]
	if !ok {
		c.door.allow(uint32(keyHash))
		c.sketch.Increment(keyHash)
		return nil, false
	}

	item := element.Value.(*storeItem)
	if item.conflict != conflict {
		c.door.allow(uint32(keyHash))
		c.sketch.Increment(keyHash)
		return nil, false
	}

	c.door.allow(uint32(keyHash))
	c.sketch.Increment(item.key)
	val := item.value
	if item.stage == stageWindow {
		c.window.get(element)
	} else {
		c.segmented.get(element)
	}
	return val, true
}

// Del removes key, if present.
func (c *BlockCache) Del(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keyHash, conflict := c.toHash(key)
	element, ok := c.data[keyHash]
	if !ok {
		return
	}
	item := element.Value.(*storeItem)
	if conflict != 0 && conflict != item.conflict {
		return
	}
	delete(c.data, keyHash)
}
