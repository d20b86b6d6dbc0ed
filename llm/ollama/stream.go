package ollama

import (
	"context"
	"errors"
	"sync"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

var errStreamClosed = errors.New("stream closed")

// ollamaStream implements llm.SegmentStream for Ollama streaming responses.
// The chat request runs in its own goroutine; Close cancels it.
type ollamaStream struct {
	cancel   context.CancelFunc
	segments []llm.Segment
	current  int
	mu       sync.Mutex
	cond     *sync.Cond // Signalled when segments arrive or the request ends
	err      error
	done     bool
	closed   bool
	received bool
	finished bool // A chunk marked done arrived
	role     string
}

// startOllamaStream starts the chat request and returns a stream of its segments.
func startOllamaStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *ollamaStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &ollamaStream{cancel: cancel, current: -1}
	s.cond = sync.NewCond(&s.mu)
	go s.run(ctx, client, req)
	return s
}

func (s *ollamaStream) run(ctx context.Context, client *api.Client, req *api.ChatRequest) {
	err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return errStreamClosed
		}
		s.received = true
		s.finished = s.finished || resp.Done
		s.segments = append(s.segments, s.responseSegments(resp)...)
		s.cond.Broadcast()
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	switch {
	case s.closed:
	case err != nil:
		s.err = convertOllamaError(err)
	case !s.finished:
		// The client ends quietly when the body is cut off mid-stream.
		s.err = llm.NewTransportError("Ollama stream ended before done", 0, nil)
	}
	s.cond.Broadcast()
}

// responseSegments emits a role segment when the role changes and a content
// segment for non-empty text. Ollama repeats the role on every chunk.
func (s *ollamaStream) responseSegments(resp api.ChatResponse) []llm.Segment {
	var segments []llm.Segment
	if resp.Message.Role != "" && resp.Message.Role != s.role {
		s.role = resp.Message.Role
		segments = append(segments, llm.RoleSegment(FromOllamaRole(resp.Message.Role)))
	}
	if resp.Message.Content != "" {
		segments = append(segments, llm.ContentSegment(resp.Message.Content))
	}
	return segments
}

// awaitFirst blocks until the first response arrives or the request ends.
// It returns the request error if nothing was received.
func (s *ollamaStream) awaitFirst() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.received && !s.done {
		s.cond.Wait()
	}
	if !s.received {
		return s.err
	}
	return nil
}

// Next advances to the next segment in the stream.
func (s *ollamaStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.current++
	for s.current >= len(s.segments) && !s.done && !s.closed {
		s.cond.Wait()
	}
	return !s.closed && s.current < len(s.segments)
}

// Segment returns the current segment.
func (s *ollamaStream) Segment() llm.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.segments) {
		return llm.Segment{}
	}
	return s.segments[s.current]
}

// Err returns the error that ended the stream, once all segments before it were read.
func (s *ollamaStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < len(s.segments) {
		return nil
	}
	return s.err
}

// Close cancels the request and stops forwarding segments.
func (s *ollamaStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.cancel()
	return nil
}

var _ llm.SegmentStream = (*ollamaStream)(nil)
