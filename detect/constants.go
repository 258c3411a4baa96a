package detect

import "time"

const (
	InputWidth    = 640
	InputHeight   = 640
	Candidates    = 8400
	ConfThreshold = 0.6

	ProcessingTimeout = 10 * time.Second
	RetryAttempts     = 3
	RetryDelay        = 100 * time.Millisecond
)
