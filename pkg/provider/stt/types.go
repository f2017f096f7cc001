package stt

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ResultKind tags a [Result] as tentative or committed.
type ResultKind int

const (
	// ResultPartial is a tentative result that may still be revised.
	ResultPartial ResultKind = iota

	// ResultFinal is a committed result that is never revised.
	ResultFinal
)

// String returns "partial" or "final".
func (k ResultKind) String() string {
	if k == ResultFinal {
		return "final"
	}
	return "partial"
}

// field returns the JSON field carrying the text for this kind.
func (k ResultKind) field() string {
	if k == ResultFinal {
		return "text"
	}
	return "partial"
}

// Result is the recognition output for one fed chunk.
type Result struct {
	Kind ResultKind
	Text string
}

// Partial returns a tentative result.
func Partial(text string) Result { return Result{Kind: ResultPartial, Text: text} }

// Final returns a committed result.
func Final(text string) Result { return Result{Kind: ResultFinal, Text: text} }

// IsFinal reports whether r is committed.
func (r Result) IsFinal() bool { return r.Kind == ResultFinal }

// HasSpeech reports whether r carries any recognized text.
func (r Result) HasSpeech() bool { return r.Text != "" }

// ParseResult extracts the text of kind from an engine payload. A missing field
// is an empty result. ok is false when the payload is not valid JSON or the
// field is not a string; the result is then empty as well.
func ParseResult(kind ResultKind, payload []byte) (r Result, ok bool) {
	r.Kind = kind
	if !gjson.ValidBytes(payload) {
		return r, false
	}
	v := gjson.GetBytes(payload, kind.field())
	if !v.Exists() {
		return r, true
	}
	if v.Type != gjson.String {
		return r, false
	}
	r.Text = strings.TrimSpace(v.Str)
	return r, true
}

// Payload renders a Vosk-shaped JSON payload for engines whose native output
// has a different shape.
func Payload(kind ResultKind, text string) []byte {
	b, err := sjson.SetBytes([]byte(`{}`), kind.field(), text)
	if err != nil {
		// sjson only fails on invalid paths; the field names are constants.
		return []byte(`{}`)
	}
	return b
}
