package agentloop

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// thinkParser incrementally extracts nested `<think>...</think>` reasoning
// out of a model's text stream when the provider has no native thinking
// event (spec.md §4.12 step 3c). Frames can split a tag across chunks, so
// it buffers the tail of displayed text that could be the start of a tag
// and only releases it once disambiguated.
//
// Flushed whenever the active model changes mid-loop (spec.md §4.12 step
// 3a) by discarding any buffered state via reset.
type thinkParser struct {
	inThink bool
	pending string // unresolved tail that might be a partial tag
}

// feed consumes one text chunk and returns (display, reasoning): the
// portion to append to the displayed text and the portion to append to
// the reasoning block, respectively, for this chunk.
func (p *thinkParser) feed(chunk string) (display, reasoning string) {
	buf := p.pending + chunk
	p.pending = ""

	var d, r strings.Builder
	for {
		tag := thinkCloseTag
		if !p.inThink {
			tag = thinkOpenTag
		}

		idx := strings.Index(buf, tag)
		if idx == -1 {
			// Keep a suffix that could be the prefix of tag across the next
			// chunk boundary; the safely-emittable remainder goes out now.
			safe := len(buf) - (len(tag) - 1)
			if safe < 0 {
				safe = 0
			}
			keep := longestTagPrefixSuffix(buf[safe:], tag)
			emit := buf[:len(buf)-len(keep)]
			if p.inThink {
				r.WriteString(emit)
			} else {
				d.WriteString(emit)
			}
			p.pending = keep
			break
		}

		before := buf[:idx]
		if p.inThink {
			r.WriteString(before)
		} else {
			d.WriteString(before)
		}
		p.inThink = !p.inThink
		buf = buf[idx+len(tag):]
	}

	return d.String(), r.String()
}

// reset discards any buffered partial-tag state, flushing the pending text
// as display (never silently dropped).
func (p *thinkParser) reset() (flushed string) {
	flushed = p.pending
	p.pending = ""
	p.inThink = false
	return flushed
}

// longestTagPrefixSuffix returns the longest suffix of s that is also a
// prefix of tag, used to decide how much trailing text must be withheld in
// case it's the start of a split tag.
func longestTagPrefixSuffix(s, tag string) string {
	max := len(s)
	if max > len(tag)-1 {
		max = len(tag) - 1
	}
	for l := max; l > 0; l-- {
		if strings.HasSuffix(s, tag[:l]) {
			return s[len(s)-l:]
		}
	}
	return ""
}
