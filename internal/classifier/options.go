package classifier

import "time"

type Option func(*Classifier)

// WithWorkers bounds how many pages are processed concurrently.
func WithWorkers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithThreshold sets the default confidence threshold.
func WithThreshold(t float64) Option {
	return func(c *Classifier) {
		if t >= 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithJobRecorder enables the audit trail.
func WithJobRecorder(r JobRecorder) Option {
	return func(c *Classifier) {
		c.jobs = r
	}
}

// WithTimeout bounds a whole document. 0 disables.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// RequestOption tunes a single ClassifyDocument call.
type RequestOption func(*request)

type request struct {
	threshold float64
}

// Threshold overrides the confidence threshold for one request.
func Threshold(t float64) RequestOption {
	return func(r *request) {
		if t >= 0 && t <= 1 {
			r.threshold = t
		}
	}
}
