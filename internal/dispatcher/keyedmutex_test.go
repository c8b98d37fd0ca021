package dispatcher

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(42)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != workers {
		t.Fatalf("lost updates: %d", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock(1)
	// a different key must not block
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock(2)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyedMutexCleansUpEntries(t *testing.T) {
	km := newKeyedMutex()
	var wg sync.WaitGroup
	for key := uint32(0); key < 8; key++ {
		wg.Add(1)
		go func(k uint32) {
			defer wg.Done()
			unlock := km.Lock(k)
			unlock()
		}(key)
	}
	wg.Wait()
	if n := km.len(); n != 0 {
		t.Fatalf("expected empty entry map, got %d", n)
	}
}
