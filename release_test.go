package unirender

import (
	"slices"
	"sync"
	"testing"
)

func TestReleaseDispatcherDrainBeforeStart(t *testing.T) {
	d := NewReleaseDispatcher()
	var got []int
	for i := 0; i < 3; i++ {
		d.Post(func() { got = append(got, i) })
	}
	d.Post(nil)
	if d.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", d.Pending())
	}
	d.Drain()
	if !slices.Equal(got, []int{0, 1, 2}) {
		t.Errorf("ran %v, want [0 1 2]", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending after Drain = %d, want 0", d.Pending())
	}
}

func TestReleaseDispatcherRunsInPostOrder(t *testing.T) {
	d := NewReleaseDispatcher()
	d.Start()
	d.Start() // extra calls are ignored
	defer d.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Drain()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestReleaseDispatcherCloseRunsRemaining(t *testing.T) {
	d := NewReleaseDispatcher()
	d.Start()

	ran := make(chan struct{}, 2)
	block := make(chan struct{})
	d.Post(func() { <-block; ran <- struct{}{} })
	d.Post(func() { ran <- struct{}{} })
	close(block)
	d.Close()

	if len(ran) != 2 {
		t.Errorf("ran %d tasks before Close returned, want 2", len(ran))
	}

	// Tasks posted after Close queue until the next Drain.
	called := false
	d.Post(func() { called = true })
	d.Drain()
	if !called {
		t.Error("task posted after Close should run on Drain")
	}
	d.Close() // second Close is a no-op
}

func TestReleaseDispatcherReleasesSurfaces(t *testing.T) {
	gpu := NewSoftwareContext(0)
	d := NewReleaseDispatcher()
	d.Start()
	defer d.Close()

	for i := 0; i < 5; i++ {
		s, err := gpu.AllocateSurface(8, 8, DefaultConfig().Cache.Format())
		if err != nil {
			t.Fatal(err)
		}
		d.Post(func() { gpu.Release(s) })
	}
	d.Drain()
	if gpu.Live() != 0 {
		t.Errorf("Live = %d, want 0", gpu.Live())
	}
}
