package ocr

import "context"

// callLimiter bounds calls that cannot be interrupted once started. A slot is
// held until the call returns, even after the caller has given up on it.
type callLimiter struct {
	slots chan struct{}
}

func newCallLimiter(n int) *callLimiter {
	if n <= 0 {
		n = 1
	}
	return &callLimiter{slots: make(chan struct{}, n)}
}

// do runs fn in its own goroutine and waits for it or for ctx.
func (l *callLimiter) do(ctx context.Context, fn func() (string, error)) (string, error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-l.slots }()
		text, err := fn()
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}
