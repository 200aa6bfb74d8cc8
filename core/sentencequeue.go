package pipeline

import (
	"context"
	"sync"
)

// sentenceQueue carries TTS-ready sentences from response generation to
// speech synthesis. End marks the stream complete; Clear abandons it.
type sentenceQueue struct {
	mu           sync.Mutex
	sentences    []string
	consumed     int
	ended        bool
	cleared      bool
	updateSignal chan struct{}
}

func newSentenceQueue() *sentenceQueue {
	return &sentenceQueue{
		updateSignal: make(chan struct{}, 1),
	}
}

func (q *sentenceQueue) Push(sentence string) {
	q.mu.Lock()
	if q.ended || q.cleared {
		q.mu.Unlock()
		return
	}
	q.sentences = append(q.sentences, sentence)
	q.mu.Unlock()
	q.signalUpdate()
}

// End is the sentinel: consumers drain what is queued and then stop.
func (q *sentenceQueue) End() {
	q.mu.Lock()
	q.ended = true
	q.mu.Unlock()
	q.signalUpdate()
}

// Clear abandons the queue immediately, dropping unconsumed sentences.
func (q *sentenceQueue) Clear() {
	q.mu.Lock()
	q.cleared = true
	q.mu.Unlock()
	q.signalUpdate()
}

// Sentences yields queued sentences in push order, blocking until more
// arrive, the queue ends, is cleared, or the context is done.
func (q *sentenceQueue) Sentences(ctx context.Context) func(func(string) bool) {
	return func(yield func(string) bool) {
		for {
			q.mu.Lock()
			if q.cleared {
				q.mu.Unlock()
				return
			}

			if q.consumed < len(q.sentences) {
				sentence := q.sentences[q.consumed]
				q.consumed++
				q.mu.Unlock()
				if !yield(sentence) {
					return
				}
				continue
			}

			if q.ended {
				q.mu.Unlock()
				return
			}

			q.mu.Unlock()
			select {
			case <-q.updateSignal:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (q *sentenceQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
