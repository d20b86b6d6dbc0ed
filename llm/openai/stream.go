package openai

import (
	"errors"
	"io"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// chunkReader is the part of *openai.ChatCompletionStream the segment stream uses.
type chunkReader interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// openaiStream implements llm.SegmentStream over an OpenAI completion stream.
// Chunks are received lazily, one per call to Next when no segments are pending.
type openaiStream struct {
	reader  chunkReader
	pending []llm.Segment
	current llm.Segment
	mu      sync.Mutex
	err     error
	done    bool
}

// newOpenAIStream creates a new openaiStream.
func newOpenAIStream(reader chunkReader) *openaiStream {
	return &openaiStream{reader: reader}
}

// Next advances to the next segment in the stream.
// The lock is not held while waiting for a chunk, so Close can interrupt a blocked read.
func (s *openaiStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		if s.done {
			return false
		}
		reader := s.reader
		s.mu.Unlock()
		chunk, err := reader.Recv()
		s.mu.Lock()
		if s.done {
			// Closed while receiving.
			return false
		}
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = convertOpenAIError(err)
			}
			return false
		}
		s.pending = chunkSegments(chunk)
	}

	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Segment returns the current segment.
func (s *openaiStream) Segment() llm.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the error that ended the stream, if any.
func (s *openaiStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream and releases the HTTP response body.
// It may be called from another goroutine while Next is blocked.
func (s *openaiStream) Close() error {
	s.mu.Lock()
	s.done = true
	s.pending = nil
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()
	if reader == nil {
		return nil
	}
	return reader.Close()
}

// chunkSegments converts the first choice of a chunk into a role segment (when the
// chunk introduces a role) followed by a content segment (when it carries text).
func chunkSegments(chunk openai.ChatCompletionStreamResponse) []llm.Segment {
	if len(chunk.Choices) == 0 {
		return nil
	}
	delta := chunk.Choices[0].Delta
	var segments []llm.Segment
	if delta.Role != "" {
		segments = append(segments, llm.RoleSegment(FromOpenAIRole(delta.Role)))
	}
	if delta.Content != "" {
		segments = append(segments, llm.ContentSegment(delta.Content))
	}
	return segments
}

var _ llm.SegmentStream = (*openaiStream)(nil)
