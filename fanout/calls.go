package fanout

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/maxpert/provision/identity"
)

const (
	callTimeLayout   = "2006-01-02T15:04:05"
	columnTimeLayout = "20060102150405"

	endTimeTag      = "<end-time>"
	answerDelay     = 10 * time.Second
	callDuration    = 60 * time.Second
	remoteNumberMax = 10_000_000_000
)

// CallSettings shapes the synthetic call history of one subscriber
type CallSettings struct {
	Count               int
	Window              time.Duration
	AnsweredProbability float64
	OutgoingProbability float64
	MaxJitter           time.Duration
}

// DefaultCallSettings is 150 calls over one week
var DefaultCallSettings = CallSettings{
	Count:               150,
	Window:              7 * 24 * time.Hour,
	AnsweredProbability: 0.8,
	OutgoingProbability: 0.5,
	MaxJitter:           time.Hour,
}

// Call is one synthesized call list entry
type Call struct {
	Index    int
	Base     time.Time // Evenly spaced position before jitter
	Start    time.Time // Base plus jitter, whole seconds
	Answered bool
	Outgoing bool
	Remote   int64 // Ten digit remote party number
}

// GenerateCalls spreads s.Count calls evenly over [now-s.Window, now). Each
// call is displaced forward by a random jitter bounded by both s.MaxJitter
// and the spacing, so start times keep the order of the base times.
func GenerateCalls(now time.Time, s CallSettings, rng *rand.Rand) []Call {
	if s.Count <= 0 {
		return nil
	}

	n := time.Duration(s.Count)
	step := s.Window / n
	bound := s.MaxJitter
	if step < bound {
		bound = step
	}

	first := now.Add(-s.Window)
	calls := make([]Call, s.Count)
	for i := range calls {
		base := first.Add(step * time.Duration(i))

		var jitter time.Duration
		if bound > 0 {
			jitter = time.Duration(rng.Int63n(int64(bound)))
		}

		calls[i] = Call{
			Index:    i,
			Base:     base,
			Start:    base.Add(jitter).Truncate(time.Second),
			Answered: rng.Float64() < s.AnsweredProbability,
			Outgoing: rng.Float64() < s.OutgoingProbability,
			Remote:   rng.Int63n(remoteNumberMax),
		}
	}
	return calls
}

// ColumnPrefix returns "call_<YYYYmmddHHMMSS>_<index as 16 hex digits>_"
func (c Call) ColumnPrefix() string {
	return fmt.Sprintf("call_%s_%016x_", c.Start.UTC().Format(columnTimeLayout), c.Index)
}

// Document renders the call list entry owned by uri, without the enclosing
// <call> element.
func (c Call) Document(uri string) string {
	var b strings.Builder

	local := func(tag string) {
		b.WriteString("<" + tag + "><URI>")
		b.WriteString(identity.EscapeText(uri))
		b.WriteString("</URI></" + tag + ">")
	}
	remote := func(tag string) {
		fmt.Fprintf(&b, "<%s><URI>sip:%010d@example.com</URI><name>Tel number %010d</name></%s>", tag, c.Remote, c.Remote, tag)
	}

	if c.Outgoing {
		local("from")
		remote("to")
	} else {
		local("to")
		remote("from")
	}

	fmt.Fprintf(&b, "<answered>%s</answered>", flag(c.Answered))
	fmt.Fprintf(&b, "<outgoing>%s</outgoing>", flag(c.Outgoing))
	fmt.Fprintf(&b, "<start-time>%s</start-time>", c.Start.UTC().Format(callTimeLayout))
	if c.Answered {
		fmt.Fprintf(&b, "<answered-time>%s</answered-time>", c.Start.Add(answerDelay).UTC().Format(callTimeLayout))
		fmt.Fprintf(&b, "%s%s</end-time>", endTimeTag, c.Start.Add(callDuration).UTC().Format(callTimeLayout))
	}
	return b.String()
}

// SplitAnswered splits an answered call document immediately before the
// end-time element. A live system holds only the begin half while a call
// is in progress.
func SplitAnswered(doc string) (begin, end string) {
	i := strings.Index(doc, endTimeTag)
	if i < 0 {
		return doc, ""
	}
	return doc[:i], doc[i:]
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// CallHistory generates the call_lists columns of one subscriber
func CallHistory(e *identity.Entity, env *Env, emit func(column, value []byte)) {
	for _, c := range GenerateCalls(env.Now, env.Calls, env.Rand) {
		prefix := c.ColumnPrefix()
		doc := c.Document(e.PublicID)
		if c.Answered {
			begin, end := SplitAnswered(doc)
			emit([]byte(prefix+"begin"), []byte(begin))
			emit([]byte(prefix+"end"), []byte(end))
		} else {
			emit([]byte(prefix+"rejected"), []byte(doc))
		}
	}
}
