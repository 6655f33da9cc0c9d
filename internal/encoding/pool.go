package encoding

import (
	"bytes"
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// DefaultWorkers is the default encodingThreads count (spec §4.4).
const DefaultWorkers = 2

// Task is one tile/sub-region handed to a worker.
type Task struct {
	View     FramebufferView
	Encoding int32
}

// Pool fans a set of Tasks out across workers and returns their Rectangles
// in the same order the Tasks were submitted, matching the header's
// rectangle count (spec §4.4).
type Pool struct {
	registry *Registry
	workers  int
}

// NewPool creates a Pool with workers encoding threads. A non-positive
// count selects DefaultWorkers; the count is capped at runtime.NumCPU().
func NewPool(registry *Registry, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if max := runtime.NumCPU(); workers > max {
		workers = max
	}
	return &Pool{registry: registry, workers: workers}
}

// Encode runs tasks concurrently and returns one Rectangle per task, in
// submission order. Encoders that return ltsmerr.Unsupported are
// transparently retried as Raw, per spec §7's fallback rule.
func (p *Pool) Encode(tasks []Task, dstFormat rfbproto.PixelFormat) ([]Rectangle, error) {
	results := make([]Rectangle, len(tasks))
	wp := pool.New().WithMaxGoroutines(p.workers)
	for i, t := range tasks {
		i, t := i, t
		wp.Go(func() {
			rect, err := p.encodeOne(t, dstFormat)
			if err != nil {
				rect = Rectangle{Region: t.View.Region, Encoding: rfbproto.EncodingRaw, Payload: nil}
			}
			results[i] = rect
		})
	}
	wp.Wait()
	for i, t := range tasks {
		if results[i].Payload == nil {
			rect, err := p.encodeOne(Task{View: t.View, Encoding: rfbproto.EncodingRaw}, dstFormat)
			if err != nil {
				return nil, fmt.Errorf("encoding: raw fallback failed: %w", err)
			}
			results[i] = rect
		}
	}
	return results, nil
}

func (p *Pool) encodeOne(t Task, dstFormat rfbproto.PixelFormat) (Rectangle, error) {
	enc := p.registry.Encoder(t.Encoding)
	if enc == nil {
		enc = RawEncoder{}
	}
	buf := new(bytes.Buffer)
	if err := enc.Encode(t.View, dstFormat, buf); err != nil {
		return Rectangle{}, err
	}
	return Rectangle{Region: t.View.Region, Encoding: enc.ID(), Payload: buf.Bytes()}, nil
}
