package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// scriptedService replays a fixed sequence of statuses per job; the last one repeats
type scriptedService struct {
	mu        sync.Mutex
	statuses  []model.JobStatus
	createErr error
	queryErr  error
	created   []string
	describes int
}

func (s *scriptedService) Create(_ context.Context, _ model.JobKind, name string, _ Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, name)
	return nil
}

func (s *scriptedService) Describe(_ context.Context, kind model.JobKind, name string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return model.Job{}, s.queryErr
	}
	idx := s.describes
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	s.describes++
	return model.Job{ID: name, Kind: kind, Status: s.statuses[idx]}, nil
}

func (s *scriptedService) describeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.describes
}

// drive advances the mock clock until done is closed
func drive(mock *clock.Mock, step time.Duration, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
			mock.Add(step)
		}
	}
}
