package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPromise_SettlesOnce(t *testing.T) {
	p := newPromise[int]()
	p.settle(1, nil)
	p.settle(2, errors.New("late"))

	v, err := p.Await(context.Background())
	if v != 1 || err != nil {
		t.Errorf("got %d, %v; want 1, nil", v, err)
	}
}

func TestPromise_RejectionIsExactValue(t *testing.T) {
	want := errors.New("boom")
	p := async(func() (string, error) { return "", want })

	_, err := p.Await(context.Background())
	if err != want {
		t.Errorf("got %v, want the original error value", err)
	}
}

func TestPromise_AwaitCancelled(t *testing.T) {
	p := newPromise[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}

	p.settle(7, nil)
	if v, err := p.Await(ctx); v != 7 || err != nil {
		t.Errorf("settled promise should win over a done context, got %d, %v", v, err)
	}
}

func TestPromise_Done(t *testing.T) {
	release := make(chan struct{})
	p := async(func() (int, error) {
		<-release
		return 3, nil
	})

	select {
	case <-p.Done():
		t.Fatal("promise settled early")
	default:
	}
	close(release)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("promise did not settle")
	}
}

func TestPromise_Then(t *testing.T) {
	p := newPromise[int]()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := range 2 {
		p.Then(func(v int, err error) {
			mu.Lock()
			order = append(order, i*10+v)
			mu.Unlock()
			wg.Done()
		})
	}
	p.settle(1, nil)
	p.Then(func(v int, err error) {
		if v != 1 || err != nil {
			t.Errorf("late callback got %d, %v", v, err)
		}
		wg.Done()
	})
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 11 {
		t.Errorf("callbacks ran out of order: %v", order)
	}
}

func TestResolvedRejected(t *testing.T) {
	if v, err := Resolved("x").Await(context.Background()); v != "x" || err != nil {
		t.Errorf("Resolved: got %q, %v", v, err)
	}
	want := errors.New("no")
	if _, err := Rejected[int](want).Await(context.Background()); err != want {
		t.Errorf("Rejected: got %v", err)
	}
}
