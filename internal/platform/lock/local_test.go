package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestLocalDoctorLocker_SerializesSameDoctor(t *testing.T) {
	locker := NewLocalDoctorLocker()
	doctorID := uuid.New()

	var (
		inCritical int
		maxSeen    int
		mu         sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithDoctorLock(context.Background(), doctorID, func(ctx context.Context) error {
				mu.Lock()
				inCritical++
				if inCritical > maxSeen {
					maxSeen = inCritical
				}
				mu.Unlock()

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithDoctorLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("critical section concurrency = %d, want 1", maxSeen)
	}
}

func TestLocalDoctorLocker_IndependentDoctors(t *testing.T) {
	locker := NewLocalDoctorLocker()
	docA, docB := uuid.New(), uuid.New()

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = locker.WithDoctorLock(context.Background(), docA, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	// A second doctor's lock must not wait on the first.
	done := make(chan struct{})
	go func() {
		_ = locker.WithDoctorLock(context.Background(), docB, func(ctx context.Context) error {
			return nil
		})
		close(done)
	}()

	<-done
	close(release)
}

func TestLocalDoctorLocker_CancelledContext(t *testing.T) {
	locker := NewLocalDoctorLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithDoctorLock(ctx, uuid.New(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("expected context error")
	}
	if called {
		t.Error("fn must not run when the context is already cancelled")
	}
}
