package services

import (
	"context"
	"strconv"
	"sync"
)

// keyedMutex serializes work per key. Different keys never contend.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*keySlot)}
}

// Lock blocks until the key is free or ctx is done. The returned func releases the key.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			k.release(key, slot)
		}, nil
	case <-ctx.Done():
		k.release(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, slot *keySlot) {
	k.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// InstanceLocks serializes state-changing operations on one instance. It is shared by every
// service that mutates instances so a finalize cannot race a report or a start.
type InstanceLocks struct {
	km *keyedMutex
}

func NewInstanceLocks() *InstanceLocks {
	return &InstanceLocks{km: newKeyedMutex()}
}

func (l *InstanceLocks) Lock(ctx context.Context, instanceID int) (func(), error) {
	return l.km.Lock(ctx, strconv.Itoa(instanceID))
}
