package scheduler

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errExceedsMaxQueueSize is returned by PolicyQueue.Enqueue when the level
// is at capacity.
func errExceedsMaxQueueSize() error {
	return status.Error(codes.Unavailable, "Exceeds maximum queue size")
}

// errDeadlineExpired is the failure handed to a payload's CompletionSink
// when its level's policy is REJECT and its deadline has passed.
func errDeadlineExpired() error {
	return status.Error(codes.Unavailable, "deadline expired before admission")
}

// errShapeTensorPeek wraps a failed shape tensor peek during
// InitPendingShape: the first candidate of a new batch has no other
// payload to fall back on, so the failure must surface instead of being
// silently treated as "not equal" (that treatment is reserved for
// CompareWithPending).
func errShapeTensorPeek(cause error) error {
	return status.Errorf(codes.Internal, "shape tensor peek failed: %v", cause)
}

// errEmptyQueue is a precondition violation: callers must never call
// Dequeue on an empty queue.
var errEmptyQueue = status.Error(codes.Internal, "dequeue on empty queue")

// errUnknownPriorityLevel is returned when Enqueue names a level the
// PriorityQueue was not configured with — a caller/config bug, not a
// runtime condition the admission path should ever hit in practice.
var errUnknownPriorityLevel = status.Error(codes.Internal, "unknown priority level")
