package notify

import (
	"context"
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is used when NOTIFY_CHUNK_SIZE is missing or not a positive integer.
	DefaultChunkSize = 10

	batchSeparator = "\n\n====================\n\n"
)

// Batcher merges consecutive account reports into one notification per chunk.
type Batcher struct {
	sink  Notifier
	size  int
	title string // fmt pattern taking the first and last account index

	buf   []string
	start int // 1-based index of buf[0]
	opts  Options
}

// NewBatcher returns a batcher flushing every size reports; size <= 0 means DefaultChunkSize.
func NewBatcher(sink Notifier, size int, title string, opts Options) *Batcher {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Batcher{sink: sink, size: size, title: title, start: 1, opts: opts}
}

func (b *Batcher) Size() int { return b.size }

func (b *Batcher) Add(report string) {
	b.buf = append(b.buf, report)
}

// FlushIfDue sends the buffer when it holds a full chunk, or when isLast is set
// so the final partial chunk is never dropped.
func (b *Batcher) FlushIfDue(ctx context.Context, isLast bool) error {
	if len(b.buf) == 0 || (len(b.buf) < b.size && !isLast) {
		return nil
	}
	first, last := b.start, b.start+len(b.buf)-1
	msg := Message{
		Title:   fmt.Sprintf(b.title, first, last),
		Body:    strings.Join(b.buf, batchSeparator),
		Options: b.opts,
	}
	b.buf = b.buf[:0]
	b.start = last + 1
	return b.sink.Notify(ctx, msg)
}
