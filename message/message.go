// Package message defines the unit of data that flows through a streamkit
// dataflow graph: Message and the FunctionResponse that carries messages
// between an operator and its function on a single invocation.
package message

import (
	"fmt"
	"sync/atomic"

	"github.com/c360/streamkit/pkg/timestamp"
)

// ContentKind discriminates the payload carried by a Message.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentBinary
	ContentImage
	ContentAudio
	ContentVideo
	ContentEmbedding
	ContentMetadata
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentBinary:
		return "binary"
	case ContentImage:
		return "image"
	case ContentAudio:
		return "audio"
	case ContentVideo:
		return "video"
	case ContentEmbedding:
		return "embedding"
	case ContentMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Content is a tagged-variant payload: exactly one of text, bytes, or a
// vector is meaningful, selected by Kind.
type Content struct {
	kind   ContentKind
	text   string
	bytes  []byte
	vector []float32
}

func TextContent(s string) Content { return Content{kind: ContentText, text: s} }

func BinaryContent(b []byte) Content { return Content{kind: ContentBinary, bytes: b} }

func ImageContent(b []byte) Content { return Content{kind: ContentImage, bytes: b} }

func AudioContent(b []byte) Content { return Content{kind: ContentAudio, bytes: b} }

func VideoContent(b []byte) Content { return Content{kind: ContentVideo, bytes: b} }

func EmbeddingContent(v []float32) Content { return Content{kind: ContentEmbedding, vector: v} }

// MetadataContent marks a message that carries no payload of its own, only
// metadata (e.g. a control or annotation record).
func MetadataContent() Content { return Content{kind: ContentMetadata} }

func (c Content) Kind() ContentKind { return c.kind }

// Text returns the text payload and whether Kind() == ContentText.
func (c Content) Text() (string, bool) { return c.text, c.kind == ContentText }

// Bytes returns the byte payload for any of the binary-shaped kinds
// (binary, image, audio, video) and whether Kind() is one of them.
func (c Content) Bytes() ([]byte, bool) {
	switch c.kind {
	case ContentBinary, ContentImage, ContentAudio, ContentVideo:
		return c.bytes, true
	default:
		return nil, false
	}
}

// Vector returns the embedding payload and whether Kind() == ContentEmbedding.
func (c Content) Vector() ([]float32, bool) { return c.vector, c.kind == ContentEmbedding }

// MetadataEntry is one key/value pair in a Message's ordered metadata.
type MetadataEntry struct {
	Key   string
	Value string
}

// Metadata is an insertion-ordered string-to-string mapping. A plain Go map
// does not preserve order, so metadata is backed by a slice with an index
// for O(1) lookups.
type Metadata struct {
	entries []MetadataEntry
	index   map[string]int
}

// Set inserts or updates a key, preserving the position of the first
// insertion on update.
func (m *Metadata) Set(key, value string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = value
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, MetadataEntry{Key: key, Value: value})
}

// Get looks up a key, returning ok == false if it is absent.
func (m *Metadata) Get(key string) (string, bool) {
	if m.index == nil {
		return "", false
	}
	if i, ok := m.index[key]; ok {
		return m.entries[i].Value, true
	}
	return "", false
}

// Entries returns the metadata in insertion order. The returned slice is a
// copy; mutating it does not affect the Metadata.
func (m *Metadata) Entries() []MetadataEntry {
	out := make([]MetadataEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Metadata) Len() int { return len(m.entries) }

// idSeq is the default identifier source used by New when a caller does not
// track its own ID space (e.g. ad-hoc tests). Production sources should
// mint IDs from their own monotonic counter, per the ownership rule that ID
// assignment belongs to the creator.
var idSeq atomic.Uint64

// NextID returns a process-wide monotonically increasing identifier. It is a
// convenience for callers (tests, simple sources) that don't need their own
// ID space; nothing in the engine requires messages to originate from it.
func NextID() uint64 { return idSeq.Add(1) }

// Message is an opaque, move-only record flowing through the graph. Copying
// a Message by value is intentionally awkward (unexported fields, no public
// struct literal) — callers that need an independent copy call Clone with a
// fresh identifier instead.
type Message struct {
	id        uint64
	createdAt int64 // unix milliseconds, via pkg/timestamp
	content   Content
	metadata  Metadata
	trace     []string
	quality   *float64
}

// New constructs a Message with the given identifier and content, stamped
// with the current time. The caller owns the ID space; the engine never
// reassigns an ID when forwarding a message.
func New(id uint64, content Content) *Message {
	return &Message{
		id:        id,
		createdAt: timestamp.Now(),
		content:   content,
	}
}

func (m *Message) ID() uint64 { return m.id }

// CreatedAt returns the creation timestamp as Unix milliseconds.
func (m *Message) CreatedAt() int64 { return m.createdAt }

func (m *Message) Content() Content { return m.content }

// SetContent replaces the payload in place. Used by Map/FlatMap functions
// that transform a message while keeping its identifier and accumulated
// trace/metadata.
func (m *Message) SetContent(c Content) { m.content = c }

func (m *Message) Metadata() *Metadata { return &m.metadata }

func (m *Message) SetMetadata(key, value string) { m.metadata.Set(key, value) }

// Trace returns the ordered list of processing-step labels recorded so far.
func (m *Message) Trace() []string {
	out := make([]string, len(m.trace))
	copy(out, m.trace)
	return out
}

// AddTrace appends a processing-step label, e.g. an operator name.
func (m *Message) AddTrace(step string) { m.trace = append(m.trace, step) }

// Quality returns the optional quality score and whether one has been set.
func (m *Message) Quality() (float64, bool) {
	if m.quality == nil {
		return 0, false
	}
	return *m.quality, true
}

// SetQuality assigns a quality score; q must be in [0,1].
func (m *Message) SetQuality(q float64) error {
	if q < 0 || q > 1 {
		return fmt.Errorf("message: quality score %v out of range [0,1]", q)
	}
	m.quality = &q
	return nil
}

// Clone builds a new Message with a caller-supplied identifier and a copy
// of this message's content, metadata, and trace. This is the only
// sanctioned way to duplicate a message; the zero-value Message struct is
// never copied directly by engine code.
func (m *Message) Clone(newID uint64) *Message {
	clone := New(newID, m.content)
	clone.metadata.entries = append([]MetadataEntry(nil), m.metadata.entries...)
	if len(m.metadata.index) > 0 {
		clone.metadata.index = make(map[string]int, len(m.metadata.index))
		for k, v := range m.metadata.index {
			clone.metadata.index[k] = v
		}
	}
	clone.trace = append([]string(nil), m.trace...)
	if m.quality != nil {
		q := *m.quality
		clone.quality = &q
	}
	return clone
}

// FunctionResponse is an ordered, move-only sequence of owned messages
// exchanged between an operator and its function on one invocation. Add,
// Clear, Size, and IsEmpty are the only mutating/inspecting operations
// beyond construction; Messages/At exist so the operator can move the
// contained messages onward without copying them.
type FunctionResponse struct {
	messages []*Message
}

// NewFunctionResponse returns an empty response ready to receive messages.
func NewFunctionResponse() *FunctionResponse {
	return &FunctionResponse{}
}

// Add appends a message, taking ownership of it.
func (r *FunctionResponse) Add(msg *Message) {
	r.messages = append(r.messages, msg)
}

// Clear releases all contained messages. Emptiness after Clear indicates
// end-of-stream only when observed on a source function's returned response.
func (r *FunctionResponse) Clear() {
	r.messages = nil
}

func (r *FunctionResponse) Size() int { return len(r.messages) }

func (r *FunctionResponse) IsEmpty() bool { return len(r.messages) == 0 }

// Messages returns the contained messages in insertion order. The slice
// itself is not shared with the response's internal storage.
func (r *FunctionResponse) Messages() []*Message {
	out := make([]*Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// At returns the message at position i, or nil if out of range.
func (r *FunctionResponse) At(i int) *Message {
	if i < 0 || i >= len(r.messages) {
		return nil
	}
	return r.messages[i]
}
