package codec

import "strings"

// Field is one decoded key/value pair.
type Field struct {
	Key   string
	Value string
}

// -----------------------------------------------------------------------------

// Tokenizer walks a flat message and yields complete key/value pairs.
type Tokenizer struct {
	src      string
	pos      int
	key      string
	buf      strings.Builder
	dangling bool
}

// NewTokenizer returns a tokenizer positioned at the start of msg.
func NewTokenizer(msg string) *Tokenizer {
	return &Tokenizer{src: msg}
}

// -----------------------------------------------------------------------------

func skippable(c byte) bool {
	switch c {
	case '{', '}', '"', ' ', '\t', '\n':
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// Next returns the next pair with a non-empty value. ok is false once the
// input is exhausted.
func (t *Tokenizer) Next() (Field, bool) {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		t.pos++

		if skippable(c) {
			continue
		}

		if c != ':' && c != ',' {
			t.buf.WriteByte(c)
			continue
		}

		tmp := t.buf.String()
		t.buf.Reset()

		if t.key == "" {
			t.key = tmp
			continue
		}

		f := Field{Key: t.key, Value: tmp}
		t.key = ""
		if f.Value != "" {
			return f, true
		}
	}

	// end of input: flush a final complete pair, otherwise drop the fragment
	if t.key != "" || t.buf.Len() > 0 {
		tmp := t.buf.String()
		t.buf.Reset()
		key := t.key
		t.key = ""
		if key != "" && tmp != "" {
			return Field{Key: key, Value: tmp}, true
		}
		t.dangling = true
	}

	return Field{}, false
}

// -----------------------------------------------------------------------------

// Dangling reports whether an unterminated fragment was discarded.
func (t *Tokenizer) Dangling() bool {
	return t.dangling
}
