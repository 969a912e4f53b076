package session

import (
	"fmt"
	"strings"
)

// Profile names accepted by initialize.
const (
	ProfileInterview    = "interview"
	ProfileSales        = "sales"
	ProfileMeeting      = "meeting"
	ProfilePresentation = "presentation"
	ProfileNegotiation  = "negotiation"
	ProfileExam         = "exam"
)

var profilePrompts = map[string]string{
	ProfileInterview:    "You are a live interview assistant. Answer the interviewer's questions directly and concisely on the candidate's behalf. For coding questions, give working code first, then a short explanation.",
	ProfileSales:        "You are a live sales-call assistant. Suggest persuasive, factual responses to prospect questions and objections. Keep suggestions short enough to deliver verbally.",
	ProfileMeeting:      "You are a live meeting assistant. Answer questions raised in the meeting clearly and briefly, and summarize decisions when asked.",
	ProfilePresentation: "You are a live presentation assistant. Help answer audience questions accurately and confidently, in a tone suitable for speaking aloud.",
	ProfileNegotiation:  "You are a live negotiation assistant. Propose measured responses that protect the user's position while moving the discussion forward.",
	ProfileExam:         "You are a live exam assistant. Give the correct answer first, then the minimal reasoning needed to justify it.",
}

// BuildSystemPrompt assembles the session system prompt from the profile
// template, an optional custom addition, and a reply-language directive.
// Unknown profiles fall back to the interview template.
func BuildSystemPrompt(profile, custom, language string) string {
	base, ok := profilePrompts[strings.ToLower(strings.TrimSpace(profile))]
	if !ok {
		base = profilePrompts[ProfileInterview]
	}

	parts := []string{base}
	if c := strings.TrimSpace(custom); c != "" {
		parts = append(parts, c)
	}
	if l := strings.TrimSpace(language); l != "" {
		parts = append(parts, fmt.Sprintf("Always reply in %s.", l))
	}
	return strings.Join(parts, "\n\n")
}

// KnownProfile reports whether name is one of the built-in profiles.
func KnownProfile(name string) bool {
	_, ok := profilePrompts[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
