package mrf

// Pattern is a partial (prefix, event, value) triple for the Stream
// Navigator: any of the three fields may be left nil to wildcard it.
type Pattern struct {
	Prefix *string
	Type   *EventType
	Value  any // compared with ==; nil means wildcard
}

func prefixPattern(prefix string) *string { return &prefix }
func typePattern(t EventType) *EventType  { return &t }

func (pat Pattern) matches(ev Event) bool {
	if pat.Prefix != nil && *pat.Prefix != ev.Prefix {
		return false
	}
	if pat.Type != nil && *pat.Type != ev.Type {
		return false
	}
	if pat.Value != nil && pat.Value != ev.Value {
		return false
	}
	return true
}

// Navigate advances p, discarding events, until one matches pat. It returns
// the matching event already consumed from the stream. If the stream ends
// first, it returns an EndOfStream error — the caller decides whether that's
// fatal or a structural signal (see the Reference Resolver's case analysis).
func Navigate(p *Parser, pat Pattern) (Event, error) {
	for {
		ev, err := p.Next()
		if err != nil {
			if err == ErrStreamExhausted {
				return Event{}, newError(EndOfStream, "pattern not found before end of stream")
			}
			return Event{}, err
		}
		if pat.matches(ev) {
			return ev, nil
		}
	}
}
