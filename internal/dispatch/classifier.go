package dispatch

import "strings"

// Interrogative and imperative lead words. An utterance starting with one of
// these (or ending with a question mark) is worth sending; everything else is
// treated as filler speech and discarded.
var leadWords = map[string]struct{}{
	// interrogatives and auxiliaries
	"what": {}, "whats": {}, "why": {}, "how": {}, "when": {}, "where": {},
	"who": {}, "whom": {}, "whose": {}, "which": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "shall": {}, "will": {},
	"do": {}, "does": {}, "did": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"have": {}, "has": {}, "had": {}, "am": {}, "may": {}, "might": {}, "must": {},
	// imperatives common in interviews and meetings
	"explain": {}, "describe": {}, "tell": {}, "show": {}, "write": {},
	"implement": {}, "create": {}, "build": {}, "compare": {}, "define": {},
	"list": {}, "give": {}, "name": {}, "solve": {}, "calculate": {},
	"compute": {}, "summarize": {}, "translate": {}, "convert": {},
	"fix": {}, "debug": {}, "design": {}, "walk": {}, "help": {},
	"find": {}, "prove": {}, "derive": {}, "outline": {}, "optimize": {},
	"refactor": {}, "review": {}, "suggest": {}, "recommend": {}, "estimate": {},
}

// IsQuestion reports whether text looks like a question or an instruction: it
// ends with a question mark or its first meaningful word is interrogative or
// imperative. A leading "please" or "so" is skipped before the check.
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}

	words := strings.Fields(strings.ToLower(trimmed))
	for _, w := range words {
		w = strings.Trim(w, ".,!;:\"'()")
		if w == "please" || w == "so" || w == "" {
			continue
		}
		_, ok := leadWords[w]
		return ok
	}
	return false
}

// Normalize collapses runs of whitespace into single spaces and trims the
// ends, so recognizer fragments join cleanly and duplicate checks compare
// like with like.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
