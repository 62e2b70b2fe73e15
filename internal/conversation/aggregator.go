package conversation

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// DefaultTerminators mark the end of a displayable sentence. The last two are
// informal laughter markers that chat users end lines with.
var DefaultTerminators = []string{".", "!", "?", "\n", "…", "ㅋㅋ", "ㅎㅎ"}

// Sink receives one completed sentence at a time, in emission order.
type Sink func(sentence string)

// Aggregator buffers streamed fragments and emits completed sentences.
//
// One Aggregator serves one response call: Consume is called for each
// fragment, Flush once at end of stream. It performs no I/O and is not safe
// for concurrent use.
type Aggregator struct {
	terminators []string
	sink        Sink
	history     *History
	buf         string
	emitted     int
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithTerminators replaces the terminator set. Empty strings are ignored.
func WithTerminators(terminators ...string) AggregatorOption {
	return func(a *Aggregator) {
		a.terminators = a.terminators[:0]
		for _, t := range terminators {
			if t != "" {
				a.terminators = append(a.terminators, t)
			}
		}
	}
}

// NewAggregator creates an aggregator that sends sentences to sink and
// appends each one to history as an assistant turn. Either may be nil.
func NewAggregator(sink Sink, history *History, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		terminators: append([]string(nil), DefaultTerminators...),
		sink:        sink,
		history:     history,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Consume appends a fragment and emits every sentence it completes.
func (a *Aggregator) Consume(fragment string) {
	if fragment == "" {
		return
	}
	a.buf += fragment

	for {
		cut := a.boundary()
		if cut < 0 {
			return
		}
		sentence := a.buf[:cut]
		// Trailing whitespace of the remainder may separate the next words.
		a.buf = strings.TrimLeft(a.buf[cut:], " \t\r\n")
		a.emit(sentence)
	}
}

// Flush emits whatever is left in the buffer and clears it.
// Calling it on an empty buffer does nothing.
func (a *Aggregator) Flush() {
	rest := a.buf
	a.buf = ""
	a.emit(rest)
}

// Pending returns the buffered text not yet emitted.
func (a *Aggregator) Pending() string {
	return a.buf
}

// Emitted returns how many sentences were sent to the sink.
func (a *Aggregator) Emitted() int {
	return a.emitted
}

func (a *Aggregator) emit(sentence string) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return
	}
	a.emitted++
	if a.sink != nil {
		a.sink(sentence)
	}
	if a.history != nil {
		if err := a.history.Append(Turn{Role: RoleAssistant, Content: sentence}); err != nil {
			slog.Warn("append assistant turn", "error", err)
		}
	}
}

// boundary returns the end offset of the first sentence in the buffer, or -1.
// Adjacent terminators ("?!", "...", "ㅋㅋㅋ") form one boundary and the cut
// lands after the last of them; a repeated trailing rune ("ㅋㅋㅋ") stays
// with the run.
func (a *Aggregator) boundary() int {
	start, length := -1, 0
	for _, t := range a.terminators {
		i := strings.Index(a.buf, t)
		if i < 0 {
			continue
		}
		if start < 0 || i < start || (i == start && len(t) > length) {
			start, length = i, len(t)
		}
	}
	if start < 0 {
		return -1
	}

	end := start + length
	for {
		if n := a.terminatorAt(end); n > 0 {
			end += n
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(a.buf[:end])
		next, size := utf8.DecodeRuneInString(a.buf[end:])
		if size == 0 || next != last {
			return end
		}
		end += size
	}
}

// terminatorAt returns the length of the longest terminator starting at i, or 0.
func (a *Aggregator) terminatorAt(i int) int {
	rest := a.buf[i:]
	longest := 0
	for _, t := range a.terminators {
		if len(t) > longest && strings.HasPrefix(rest, t) {
			longest = len(t)
		}
	}
	return longest
}
