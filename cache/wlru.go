package cache

import "container/list"

// windowLRU is TinyLFU's admission window: every new key lands here
// first, so a burst of one-off reads never displaces the protected set.
type windowLRU struct {
	data map[uint64]*list.Element
	cap  int
	list *list.List
}

// stage marks which tier of the cache a storeItem currently occupies.
const (
	stageWindow = iota
	stageProbation
	stageProtected
)

type storeItem struct {
	stage    int
	key      uint64
	conflict uint64
	value    interface{}
}

func newWindowLRU(size int, data map[uint64]*list.Element) *windowLRU {
	return &windowLRU{data: data, cap: size, list: list.New()}
}

// add inserts newItem, evicting and returning the window's LRU victim
// once the window is full.
func (wl *windowLRU) add(newItem storeItem) (eItem storeItem, evicted bool) {
	if wl.list.Len() < wl.cap {
		wl.data[newItem.key] = wl.list.PushFront(&newItem)
		return storeItem{}, false
	}

	element := wl.list.Back()
	item := element.Value.(*storeItem)
	delete(wl.data, item.key)

	eItem, *item = *item, newItem
	wl.data[item.key] = element
	wl.list.MoveToFront(element)

	return eItem, true
}

func (wl *windowLRU) get(element *list.Element) {
	wl.list.MoveToFront(element)
}
