package triage

import "sync"

// keyedMutex serializes work per RFQ id. Slots are reference counted and
// dropped once no caller holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*lockSlot)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &lockSlot{}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	slot.mu.Lock()
	return func() {
		slot.mu.Unlock()
		k.mu.Lock()
		slot.refs--
		if slot.refs == 0 {
			delete(k.slots, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
