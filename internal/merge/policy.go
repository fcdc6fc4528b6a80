package merge

import "sync"

// Policy decides whether an intermediate stage proceeds when the collection
// of a run holds no more archives than the split threshold.
type Policy interface {
	ShouldProceedBelowThreshold(run, count int) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(run, count int) bool

// ShouldProceedBelowThreshold implements Policy.
func (f PolicyFunc) ShouldProceedBelowThreshold(run, count int) bool { return f(run, count) }

var (
	// Proceed always submits.
	Proceed Policy = PolicyFunc(func(int, int) bool { return true })

	// Abort skips every run below the threshold.
	Abort Policy = PolicyFunc(func(int, int) bool { return false })
)

// Sticky asks p once and reuses its first answer for the rest of the batch.
func Sticky(p Policy) Policy {
	return &sticky{inner: p}
}

type sticky struct {
	once   sync.Once
	inner  Policy
	answer bool
}

func (s *sticky) ShouldProceedBelowThreshold(run, count int) bool {
	s.once.Do(func() { s.answer = s.inner.ShouldProceedBelowThreshold(run, count) })
	return s.answer
}
