package cache

import "container/list"

// segmentedLRU is the protected tier: A1 (probation) buffers candidates
// promoted out of the window, A2 (protected) holds keys that have proven
// themselves by being re-accessed while in A1.
type segmentedLRU struct {
	data         map[uint64]*list.Element
	a1Cap, a2Cap int
	a1, a2       *list.List
}

func newSLRU(data map[uint64]*list.Element, a1Cap, a2Cap int) *segmentedLRU {
	return &segmentedLRU{data: data, a1Cap: a1Cap, a2Cap: a2Cap, a1: list.New(), a2: list.New()}
}

func (sl *segmentedLRU) Len() int { return sl.a1.Len() + sl.a2.Len() }

// add always lands newItem in A1; it is promoted to A2 only on a
// subsequent get.
func (sl *segmentedLRU) add(newItem storeItem) {
	newItem.stage = stageProbation

	if sl.a1.Len() < sl.a1Cap || sl.Len() < sl.a1Cap+sl.a2Cap {
		element := sl.a1.PushFront(&newItem)
		sl.data[newItem.key] = element
		return
	}

	element := sl.a1.Back()
	item := element.Value.(*storeItem)
	delete(sl.data, item.key)

	*item = newItem
	sl.data[item.key] = element
	sl.a1.MoveToFront(element)
}

func (sl *segmentedLRU) get(element *list.Element) {
	item := element.Value.(*storeItem)

	if item.stage == stageProtected {
		sl.a2.MoveToFront(element)
		return
	}

	if sl.a2.Len() < sl.a2Cap {
		sl.a1.Remove(element)
		item.stage = stageProtected
		sl.data[item.key] = sl.a2.PushFront(item)
		return
	}

	// A2 is full: swap item with A2's own LRU victim rather than drop
	// either, so a newly-promoted key still gets a trial run in A2.
	a2Back := sl.a2.Back()
	a2Item := a2Back.Value.(*storeItem)

	*a2Item, *item = *item, *a2Item
	a2Item.stage = stageProtected
	item.stage = stageProbation

	sl.data[item.key] = element
	sl.data[a2Item.key] = a2Back

	sl.a1.MoveToFront(element)
	sl.a2.MoveToFront(a2Back)
}

// victim returns A1's LRU entry once the segmented LRU is full — the
// candidate a window eviction must out-compete via the frequency sketch
// to be admitted at all.
func (sl *segmentedLRU) victim() *storeItem {
	if sl.Len() < sl.a1Cap+sl.a2Cap {
		return nil
	}
	return sl.a1.Back().Value.(*storeItem)
}
