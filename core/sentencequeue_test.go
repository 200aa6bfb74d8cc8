package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestSentenceQueueYieldsInPushOrder(t *testing.T) {
	queue := newSentenceQueue()
	queue.Push("one")
	queue.Push("two")
	queue.Push("three")
	queue.End()

	var got []string
	for sentence := range queue.Sentences(context.Background()) {
		got = append(got, sentence)
	}

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSentenceQueueBlocksUntilPush(t *testing.T) {
	queue := newSentenceQueue()

	received := make(chan string, 1)
	go func() {
		for sentence := range queue.Sentences(context.Background()) {
			received <- sentence
			return
		}
	}()

	select {
	case sentence := <-received:
		t.Fatalf("received %q before anything was pushed", sentence)
	case <-time.After(50 * time.Millisecond):
	}

	queue.Push("late arrival")
	select {
	case sentence := <-received:
		if sentence != "late arrival" {
			t.Fatalf("received %q, want %q", sentence, "late arrival")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer never woke up after Push")
	}
}

func TestSentenceQueueEndStopsConsumer(t *testing.T) {
	queue := newSentenceQueue()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range queue.Sentences(context.Background()) {
		}
	}()

	queue.End()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after End")
	}

	queue.Push("after the sentinel")
	for range queue.Sentences(context.Background()) {
		t.Fatal("a sentence was accepted after End")
	}
}

func TestSentenceQueueClearDropsUnconsumed(t *testing.T) {
	queue := newSentenceQueue()
	queue.Push("doomed")
	queue.Clear()

	for range queue.Sentences(context.Background()) {
		t.Fatal("a sentence survived Clear")
	}
}

func TestSentenceQueueContextCancellation(t *testing.T) {
	queue := newSentenceQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range queue.Sentences(ctx) {
		}
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on context cancellation")
	}
}
