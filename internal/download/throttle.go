package download

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttleReader caps read throughput with a token bucket. A nil limiter
// disables throttling entirely.
type throttleReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (t *throttleReader) Read(p []byte) (int, error) {
	if t.limiter == nil {
		return t.r.Read(p)
	}
	// Never request more tokens than the bucket can hold.
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n <= 0 {
		return n, err
	}
	if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}
