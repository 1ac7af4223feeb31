package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type localDoctorLocker struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*sync.Mutex
}

// NewLocalDoctorLocker creates an in-process locker for single-instance
// deployments and tests. Unlike the Redis locker it blocks rather than
// failing fast, which is fine when all contention is in one process.
func NewLocalDoctorLocker() DoctorLocker {
	return &localDoctorLocker{
		doctors: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (l *localDoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.doctors[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.doctors[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
