package session

import (
	"github.com/cadewatson/overhear/pkg/provider/llm"
)

// ImagePlaceholder replaces evicted image data in history so the model still
// sees that an image was part of the turn without the payload cost.
const ImagePlaceholder = "[screenshot omitted]"

// History is the bounded conversation log of one session: an ordered list of
// user/model message pairs with two independent caps, one on total turns and
// one on turns that retain image data. Not safe for concurrent use; the
// owning Session serializes access.
type History struct {
	maxTurns      int
	maxImageTurns int
	entries       []llm.Message
}

// NewHistory returns an empty history with the given caps. Non-positive caps
// fall back to 8 turns and 3 image turns.
func NewHistory(maxTurns, maxImageTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = 8
	}
	if maxImageTurns <= 0 {
		maxImageTurns = 3
	}
	return &History{maxTurns: maxTurns, maxImageTurns: maxImageTurns}
}

// AppendTurn records one completed request/response pair and enforces both
// caps: the oldest turns beyond maxTurns are dropped, and image data on all
// but the newest maxImageTurns image-bearing turns is replaced by
// [ImagePlaceholder]. Order is never changed.
func (h *History) AppendTurn(user, model llm.Message) {
	h.entries = append(h.entries, user, model)

	if turns := len(h.entries) / 2; turns > h.maxTurns {
		h.entries = h.entries[(turns-h.maxTurns)*2:]
	}
	h.stripOldImages()
}

func (h *History) stripOldImages() {
	kept := 0
	for i := len(h.entries) - 1; i >= 0; i-- {
		if !h.entries[i].HasBlob() {
			continue
		}
		if kept < h.maxImageTurns {
			kept++
			continue
		}
		h.entries[i] = stripBlobs(h.entries[i])
	}
}

func stripBlobs(m llm.Message) llm.Message {
	parts := make([]llm.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.HasBlob() {
			parts = append(parts, llm.Part{Text: ImagePlaceholder})
			continue
		}
		parts = append(parts, p)
	}
	return llm.Message{Role: m.Role, Parts: parts}
}

// Messages returns a copy of the history, oldest first. When stripAllImages
// is true every image part is replaced by the placeholder, which shrinks the
// payload for text-only and low-latency requests.
func (h *History) Messages(stripAllImages bool) []llm.Message {
	out := make([]llm.Message, len(h.entries))
	for i, m := range h.entries {
		if stripAllImages && m.HasBlob() {
			out[i] = stripBlobs(m)
			continue
		}
		out[i] = m
	}
	return out
}

// Turns returns the number of retained request/response pairs.
func (h *History) Turns() int {
	return len(h.entries) / 2
}

// ImageTurns returns how many retained messages still carry image data.
func (h *History) ImageTurns() int {
	n := 0
	for _, m := range h.entries {
		if m.HasBlob() {
			n++
		}
	}
	return n
}

// Reset drops all entries.
func (h *History) Reset() {
	h.entries = nil
}
