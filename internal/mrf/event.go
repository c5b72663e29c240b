package mrf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EventType is one of the nine token kinds a streaming JSON tokenizer can
// emit, mirroring SPEC_FULL.md §6's event model.
type EventType string

const (
	StartMap   EventType = "start_map"
	EndMap     EventType = "end_map"
	StartArray EventType = "start_array"
	EndArray   EventType = "end_array"
	MapKey     EventType = "map_key"
	String     EventType = "string"
	Number     EventType = "number"
	Boolean    EventType = "boolean"
	Null       EventType = "null"
)

// Event is one (prefix, event, value) triple. Prefix is the dotted path to
// the node this event concerns; array elements contribute a literal ".item"
// path segment rather than an index, so every element of an array shares one
// prefix regardless of how many elements precede it.
type Event struct {
	Prefix string
	Type   EventType
	Value  any
}

type frameKind int

const (
	frameMap frameKind = iota
	frameArr
)

type frame struct {
	kind      frameKind
	prefix    string
	key       string // pending key, frameMap only
	expectKey bool   // frameMap only: true when the next token is a key, not a value
}

// Parser turns a byte stream into a lazy sequence of Events via
// encoding/json.Decoder.Token(), the same primitive this organization's
// other MRF tool streams with (internal/mrf/stream.go's skipValue/Token
// loop) generalized into the full ijson-style event model SPEC_FULL.md
// requires, rather than that tool's per-key specialized decode functions.
type Parser struct {
	dec      *json.Decoder
	stack    []frame
	buffered *Event
	bufErr   error
	done     bool
}

// NewParser wraps r as an Event source. use_float in the reference Python
// processor corresponds to decoding JSON numbers as float64 here — the
// default for encoding/json.Decoder.Token() once UseNumber is not called,
// so no extra configuration is needed.
func NewParser(r io.Reader) *Parser {
	return &Parser{dec: json.NewDecoder(r)}
}

// Peek returns the next event without consuming it. A second call to Peek
// (without an intervening Next) returns the same event.
func (p *Parser) Peek() (Event, error) {
	if p.buffered == nil && p.bufErr == nil {
		ev, err := p.next()
		p.buffered = &ev
		p.bufErr = err
	}
	if p.bufErr != nil {
		return Event{}, p.bufErr
	}
	return *p.buffered, nil
}

// Next returns and consumes the next event.
func (p *Parser) Next() (Event, error) {
	if p.buffered != nil || p.bufErr != nil {
		ev, err := *p.buffered, p.bufErr
		p.buffered, p.bufErr = nil, nil
		return ev, err
	}
	return p.next()
}

var ErrStreamExhausted = errors.New("mrf: event stream exhausted")

func (p *Parser) next() (Event, error) {
	if p.done {
		return Event{}, ErrStreamExhausted
	}

	if len(p.stack) == 0 {
		// Root position: the next token is the document's single top-level
		// value.
		return p.readValue("")
	}

	top := &p.stack[len(p.stack)-1]
	switch top.kind {
	case frameArr:
		if !p.dec.More() {
			if _, err := p.dec.Token(); err != nil { // consume ']'
				return Event{}, fmt.Errorf("mrf: reading array end: %w", err)
			}
			ev := Event{Prefix: top.prefix, Type: EndArray}
			p.stack = p.stack[:len(p.stack)-1]
			if len(p.stack) == 0 {
				p.done = true
			}
			return ev, nil
		}
		return p.readValue(join(top.prefix, "item"))

	default: // frameMap
		if top.expectKey {
			if !p.dec.More() {
				if _, err := p.dec.Token(); err != nil { // consume '}'
					return Event{}, fmt.Errorf("mrf: reading object end: %w", err)
				}
				ev := Event{Prefix: top.prefix, Type: EndMap}
				p.stack = p.stack[:len(p.stack)-1]
				if len(p.stack) == 0 {
					p.done = true
				}
				return ev, nil
			}
			tok, err := p.dec.Token()
			if err != nil {
				return Event{}, fmt.Errorf("mrf: reading object key: %w", err)
			}
			key, ok := tok.(string)
			if !ok {
				return Event{}, fmt.Errorf("mrf: expected string key, got %T", tok)
			}
			top.key = key
			top.expectKey = false
			return Event{Prefix: top.prefix, Type: MapKey, Value: key}, nil
		}
		top.expectKey = true
		return p.readValue(join(top.prefix, top.key))
	}
}

// readValue reads one token and emits the Event for a value appearing at
// prefix p — pushing a new frame for containers, or emitting a scalar.
func (p *Parser) readValue(prefix string) (Event, error) {
	tok, err := p.dec.Token()
	if err != nil {
		if err == io.EOF {
			return Event{}, ErrStreamExhausted
		}
		return Event{}, fmt.Errorf("mrf: reading token: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			p.stack = append(p.stack, frame{kind: frameMap, prefix: prefix, expectKey: true})
			return Event{Prefix: prefix, Type: StartMap}, nil
		case '[':
			p.stack = append(p.stack, frame{kind: frameArr, prefix: prefix})
			return Event{Prefix: prefix, Type: StartArray}, nil
		default:
			return Event{}, fmt.Errorf("mrf: unexpected delimiter %v", t)
		}
	case string:
		return Event{Prefix: prefix, Type: String, Value: t}, nil
	case float64:
		return Event{Prefix: prefix, Type: Number, Value: t}, nil
	case bool:
		return Event{Prefix: prefix, Type: Boolean, Value: t}, nil
	case nil:
		return Event{Prefix: prefix, Type: Null, Value: nil}, nil
	default:
		return Event{}, fmt.Errorf("mrf: unexpected token %T", tok)
	}
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
