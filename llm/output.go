package llm

import (
	"context"
	"strings"
)

// SegmentKind identifies the kind of a streamed output segment.
type SegmentKind string

const (
	SegmentRole    SegmentKind = "role"
	SegmentContent SegmentKind = "content"
)

// Segment is one incremental unit of streamed output: a role marker or a content fragment.
type Segment struct {
	Kind    SegmentKind
	Role    MessageRole // For role segments
	Content string      // For content segments
}

// RoleSegment creates a role segment.
func RoleSegment(role MessageRole) Segment {
	return Segment{Kind: SegmentRole, Role: role}
}

// ContentSegment creates a content segment.
func ContentSegment(fragment string) Segment {
	return Segment{Kind: SegmentContent, Content: fragment}
}

// SegmentStream is a lazy, single-pass sequence of output segments.
// Segments are delivered in the order the provider emitted them.
type SegmentStream interface {
	// Next advances to the next segment.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Segment returns the current segment.
	// Should only be called after Next() returns true.
	Segment() Segment

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close stops forwarding and releases the underlying transport stream.
	Close() error
}

// Output is the result of an execution: either an immediately available
// message collection or a lazy segment stream.
type Output struct {
	messages []ChatMessage
	stream   SegmentStream
}

// NewImmediateOutput creates an output holding complete messages.
func NewImmediateOutput(messages ...ChatMessage) *Output {
	msgs := make([]ChatMessage, len(messages))
	copy(msgs, messages)
	return &Output{messages: msgs}
}

// NewStreamOutput creates an output backed by a segment stream.
func NewStreamOutput(stream SegmentStream) *Output {
	return &Output{stream: stream}
}

// IsStreaming reports whether the output is a segment stream.
func (o *Output) IsStreaming() bool {
	return o.stream != nil
}

// Messages returns the messages of an immediate output, or nil for a stream.
func (o *Output) Messages() []ChatMessage {
	return o.messages
}

// Stream returns the segment stream, or nil for an immediate output.
func (o *Output) Stream() SegmentStream {
	return o.stream
}

// Text returns the content of the output as a single string.
// For streaming output this consumes and closes the stream.
func (o *Output) Text(ctx context.Context) (string, error) {
	if o.stream == nil {
		parts := make([]string, 0, len(o.messages))
		for _, m := range o.messages {
			parts = append(parts, m.Body)
		}
		return strings.Join(parts, "\n"), nil
	}

	defer o.stream.Close()

	var sb strings.Builder
	for o.stream.Next() {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		seg := o.stream.Segment()
		if seg.Kind == SegmentContent {
			sb.WriteString(seg.Content)
		}
	}
	if err := o.stream.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// sliceStream is a SegmentStream over a fixed slice of segments.
type sliceStream struct {
	segments []Segment
	current  int
	err      error
	closed   bool
}

// NewSliceStream returns a SegmentStream yielding the given segments, then err (if non-nil).
func NewSliceStream(err error, segments ...Segment) SegmentStream {
	return &sliceStream{segments: segments, current: -1, err: err}
}

func (s *sliceStream) Next() bool {
	if s.closed {
		return false
	}
	s.current++
	return s.current < len(s.segments)
}

func (s *sliceStream) Segment() Segment {
	if s.current < 0 || s.current >= len(s.segments) {
		return Segment{}
	}
	return s.segments[s.current]
}

func (s *sliceStream) Err() error {
	if s.current >= len(s.segments) {
		return s.err
	}
	return nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

var _ SegmentStream = (*sliceStream)(nil)
