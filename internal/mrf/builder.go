package mrf

// Builder folds a sub-stream of Events into in-memory values (map[string]any
// for objects, []any for arrays, and the scalar Go types encoding/json
// produces for everything else). It keeps a push-down stack of open
// containers and a list of values that have closed all the way out to the
// top level, matching the two things SPEC_FULL.md §4.2 requires a builder to
// expose: "the completed-values list, the open-containers stack (so the
// Filter can pop and discard a partially built item)".
type Builder struct {
	stack     []*openFrame
	Completed []any

	// Last holds the value most recently folded in by Event — either a
	// scalar, or a container whose closing event was just processed. Reading
	// it right after Event returns is how callers pull out "the value that
	// just finished", whether it ended up in Completed, a parent map, or a
	// parent array.
	Last any
}

type openFrame struct {
	kind frameKind
	m    map[string]any
	arr  []any
	key  string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Depth reports how many containers are currently open.
func (b *Builder) Depth() int { return len(b.stack) }

// Event folds one Event into the builder's state.
func (b *Builder) Event(ev Event) {
	switch ev.Type {
	case StartMap:
		b.stack = append(b.stack, &openFrame{kind: frameMap, m: map[string]any{}})
	case StartArray:
		b.stack = append(b.stack, &openFrame{kind: frameArr})
	case MapKey:
		b.top().key = ev.Value.(string)
	case EndMap:
		f := b.pop()
		b.emit(f.m)
	case EndArray:
		f := b.pop()
		b.emit(f.arr)
	default: // String, Number, Boolean, Null
		b.emit(ev.Value)
	}
}

func (b *Builder) top() *openFrame { return b.stack[len(b.stack)-1] }

func (b *Builder) pop() *openFrame {
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

func (b *Builder) emit(v any) {
	b.Last = v
	if len(b.stack) == 0 {
		b.Completed = append(b.Completed, v)
		return
	}
	top := b.top()
	if top.kind == frameMap {
		top.m[top.key] = v
	} else {
		top.arr = append(top.arr, v)
	}
}

// CurrentMap returns the map belonging to the currently-open top frame, or
// nil if the top frame isn't a map (or nothing is open). Used to inspect a
// partially-built item's fields before its end_map arrives — the early-skip
// check in SPEC_FULL.md §4.5.
func (b *Builder) CurrentMap() map[string]any {
	if len(b.stack) == 0 {
		return nil
	}
	top := b.top()
	if top.kind != frameMap {
		return nil
	}
	return top.m
}

// DiscardTop drops the currently open, not-yet-closed top frame without
// folding it into its parent. Used after a Navigator fast-forward skips the
// remaining events of an item directly from the Parser (bypassing the
// builder entirely) so the builder's notion of "what's open" stays in sync.
func (b *Builder) DiscardTop() {
	b.stack = b.stack[:len(b.stack)-1]
}
