// Package audio forwards encoded audio chunks captured alongside the
// captions. The channel is best-effort: chunks are never the durability
// path, the caption transcript is.
package audio

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/logging"
)

// Chunk is one fixed-duration slice of encoded meeting audio.
type Chunk struct {
	MeetingID  string    `json:"meeting_id"`
	Seq        int       `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	// DurationSeconds is the nominal chunk length; the forwarder stamps
	// it from configuration on enqueue.
	DurationSeconds int    `json:"duration_seconds"`
	Data            []byte `json:"data"`
}

// Sender delivers one chunk to the backend.
type Sender interface {
	SendAudioChunk(ctx context.Context, chunk Chunk) error
}

// Forwarder queues chunks and ships them in order on a background
// worker. The queue is bounded; when a slow backend fills it, the oldest
// chunk is dropped so live capture never stalls.
type Forwarder struct {
	sender       Sender
	log          *zap.SugaredLogger
	chunkSeconds int

	mu    sync.Mutex
	queue []Chunk
	max   int
	wake  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewForwarder builds a forwarder with the given queue capacity and
// nominal chunk length in seconds.
func NewForwarder(sender Sender, capacity, chunkSeconds int) *Forwarder {
	if capacity < 1 {
		capacity = 64
	}
	if chunkSeconds < 1 {
		chunkSeconds = 10
	}
	return &Forwarder{
		sender:       sender,
		log:          logging.Get(logging.CategoryAudio),
		chunkSeconds: chunkSeconds,
		max:          capacity,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Close stops the worker after the current delivery.
func (f *Forwarder) Close() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.wg.Wait()
}

// Enqueue adds one chunk. Never blocks; over capacity the oldest queued
// chunk is dropped.
func (f *Forwarder) Enqueue(chunk Chunk) {
	if chunk.DurationSeconds == 0 {
		chunk.DurationSeconds = f.chunkSeconds
	}
	f.mu.Lock()
	if len(f.queue) >= f.max {
		dropped := f.queue[0]
		f.queue = f.queue[1:]
		f.log.Warnw("audio queue full, dropped oldest chunk",
			"meeting", dropped.MeetingID, "seq", dropped.Seq)
	}
	f.queue = append(f.queue, chunk)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Pending returns the queued chunk count.
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Forwarder) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-f.wake:
		}
		f.drain(ctx)
	}
}

func (f *Forwarder) drain(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		chunk := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		if err := f.sender.SendAudioChunk(ctx, chunk); err != nil {
			f.log.Warnw("audio chunk delivery failed, chunk lost",
				"meeting", chunk.MeetingID, "seq", chunk.Seq, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		default:
		}
	}
}
