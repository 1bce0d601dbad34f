package logging

import "sync"

// ProgressSampler suppresses repetitive per-task progress logs, emitting only
// when a task's progress crosses into a new bucket.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	last       map[string]int
}

// NewProgressSampler constructs a sampler with the given bucket size in
// percent (default 10).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, last: make(map[string]int)}
}

// ShouldLog reports whether the ratio (0..1) for taskID reached a new bucket.
func (s *ProgressSampler) ShouldLog(taskID string, ratio float64) bool {
	if s == nil {
		return true
	}
	percent := ratio * 100
	if percent < 0 {
		return false
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.last[taskID]
	if seen && bucket <= last {
		return false
	}
	s.last[taskID] = bucket
	return true
}

// Forget drops the sampler state for a finished task.
func (s *ProgressSampler) Forget(taskID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.last, taskID)
	s.mu.Unlock()
}
