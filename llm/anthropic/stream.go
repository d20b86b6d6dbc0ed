package anthropic

import (
	"sync"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// eventReader is the part of *ssestream.Stream the segment stream uses.
type eventReader interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// anthropicStream implements llm.SegmentStream over an Anthropic SSE stream.
// Events are pulled on demand; only message starts and text deltas produce segments.
type anthropicStream struct {
	reader  eventReader
	pending []llm.Segment
	current llm.Segment
	mu      sync.Mutex
	err     error
	done    bool
}

func newAnthropicStream(reader eventReader) *anthropicStream {
	return &anthropicStream{reader: reader}
}

// open reads until the first segment or the end of the stream, so that a failed
// request surfaces as an error before any output is returned to the caller.
func (s *anthropicStream) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fill()
	if len(s.pending) == 0 && s.err != nil {
		return s.err
	}
	return nil
}

// fill reads events until at least one segment is pending or the stream ends.
// It must be called with s.mu held; the lock is released while waiting for an event
// so that Close can interrupt a blocked read.
func (s *anthropicStream) fill() {
	for len(s.pending) == 0 && !s.done {
		reader := s.reader
		s.mu.Unlock()
		ok := reader.Next()
		var (
			event anthropic.MessageStreamEventUnion
			err   error
		)
		if ok {
			event = reader.Current()
		} else {
			err = reader.Err()
		}
		s.mu.Lock()
		if s.done {
			// Closed while reading.
			return
		}
		if !ok {
			s.done = true
			if err != nil {
				s.err = convertAnthropicError(err)
			}
			return
		}
		s.pending = eventSegments(event)
	}
}

// Next advances to the next segment in the stream.
func (s *anthropicStream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fill()
	if len(s.pending) == 0 {
		return false
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Segment returns the current segment.
func (s *anthropicStream) Segment() llm.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Err returns the error that ended the stream, if any.
func (s *anthropicStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		return nil
	}
	return s.err
}

// Close closes the stream and releases the HTTP response body.
// It may be called from another goroutine while Next is blocked.
func (s *anthropicStream) Close() error {
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

func eventSegments(event anthropic.MessageStreamEventUnion) []llm.Segment {
	switch evt := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return []llm.Segment{llm.RoleSegment(FromAnthropicRole(string(evt.Message.Role)))}
	case anthropic.ContentBlockDeltaEvent:
		if d, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
			return []llm.Segment{llm.ContentSegment(d.Text)}
		}
	}
	return nil
}

var _ llm.SegmentStream = (*anthropicStream)(nil)
