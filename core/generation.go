package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/loquilabs/loqui/core/llms"
	"github.com/loquilabs/loqui/core/protocol"
)

// sentenceTerminals are the characters that flush the sentence buffer onto
// the synthesis queue.
const sentenceTerminals = ".:?!\n"

// startGeneration cancels any in-flight response and starts a new one for
// the given prompt. At most one generation (and with it one synthesis) run
// exists per session.
func (s *Session) startGeneration(prompt string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.mu.Lock()
	previous := s.generation
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	previous.stop()

	ctx, cancel := context.WithCancel(s.baseCtx)
	handle := &stageHandle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.generation = handle
	s.mu.Unlock()

	go func() {
		defer close(handle.done)
		if err := s.respond(ctx, prompt); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[session %s] response run failed: %v", s.ID, err)
		}
	}()
}

// respond runs one full response: persist the prompt, stream the model,
// and feed synthesis. Its workers share one cancellable context; a failure
// or panic in either cancels both.
func (s *Session) respond(ctx context.Context, prompt string) error {
	ctx, span := tracer.Start(ctx, "respond")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	if err := s.appendMessage(ctx, llms.Message{
		Role:    llms.RoleUser,
		Content: prompt,
		Time:    time.Now(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	queue := newSentenceQueue()
	defer queue.Clear()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			cancel()
		}
	}

	voiceOutput := s.Config().Agent.VoiceOutputEnabled && s.synthesizer != nil

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		run("llm generation", func(ctx context.Context) error {
			return s.generate(ctx, queue)
		})
	}()
	if voiceOutput {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run("speech synthesis", func(ctx context.Context) error {
				return s.synthesize(ctx, queue)
			})
		}()
	}
	wg.Wait()

	if workerErr != nil {
		span.RecordError(workerErr)
		span.SetStatus(codes.Error, workerErr.Error())
		return fmt.Errorf("one or more response workers failed: %w", workerErr)
	}
	return nil
}

// generate drives the model: stream tokens to the client, flush sentences
// to the queue, run the tool loop, and persist the completed exchange.
// Cancellation discards the partial response without persisting it.
func (s *Session) generate(ctx context.Context, queue *sentenceQueue) error {
	ctx, span := tracer.Start(ctx, "generate llm")
	defer span.End()

	cfg := s.Config()
	params := llms.GenerationParams{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		ContextLength: cfg.LLM.ContextLength,
		RepeatPenalty: cfg.LLM.RepeatPenalty,
	}
	history := s.history()

	var turnMessages []llms.Message
	var sentence strings.Builder
	flush := func() {
		text := sanitizeForSpeech(sentence.String())
		sentence.Reset()
		if pronounceable(text) {
			queue.Push(text)
		}
	}

	for {
		stream := s.llm.PromptWithStream(ctx, nil,
			llms.WithInstructions(cfg.LLM.SystemPrompt),
			llms.WithHistory(append(history, turnMessages...)),
			llms.WithTools(s.tools...),
			llms.WithParams(params),
		)

		var message strings.Builder
		var toolCalls []llms.ToolCall
		for chunk, err := range stream.Chunks(ctx) {
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				err = fmt.Errorf("failed to stream llm response: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				content := chunk.Content()
				if content == "" {
					continue
				}
				message.WriteString(content)
				s.sendToken(&content)

				for _, r := range content {
					sentence.WriteRune(r)
					if strings.ContainsRune(sentenceTerminals, r) {
						flush()
					}
				}

			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if len(toolCalls) > 0 {
			assistantCall := llms.Message{
				Role:      llms.RoleAssistant,
				Content:   message.String(),
				ToolCalls: toolCalls,
				Time:      time.Now(),
			}
			if err := s.appendMessage(ctx, assistantCall); err != nil {
				return err
			}
			turnMessages = append(turnMessages, assistantCall)

			for _, toolCall := range toolCalls {
				result := s.executeTool(ctx, toolCall)
				toolMessage := llms.Message{
					Role:       llms.RoleTool,
					Content:    result,
					ToolCallID: toolCall.ID,
					ToolName:   toolCall.Name,
					Time:       time.Now(),
				}
				if err := s.appendMessage(ctx, toolMessage); err != nil {
					return err
				}
				turnMessages = append(turnMessages, toolMessage)
			}
			continue
		}

		// Plain-text completion: persist, close out the stream.
		flush()
		if err := s.appendMessage(ctx, llms.Message{
			Role:    llms.RoleAssistant,
			Content: message.String(),
			Time:    time.Now(),
			Model:   cfg.LLM.Model,
		}); err != nil {
			return err
		}

		s.sendToken(nil)
		queue.End()
		s.bumpLastInteraction()
		span.SetAttributes(attribute.Int("response.length", message.Len()))
		return nil
	}
}

func (s *Session) sendToken(token *string) {
	if err := s.send(protocol.NewToken(token)); err != nil {
		log.Printf("[session %s] failed to send token: %v", s.ID, err)
	}
}
