// Package resilience classifies provider failures and runs the countdown
// that gates request traffic after a rate limit or overload.
package resilience

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Class is the failure category of a provider error.
type Class int

const (
	// ClassUnknown covers errors that match no known category; they surface
	// as terminal status strings without automatic recovery.
	ClassUnknown Class = iota

	// ClassRateLimit is a quota/rate-limit rejection (HTTP 429,
	// RESOURCE_EXHAUSTED). Recovered by countdown.
	ClassRateLimit

	// ClassOverloaded is a capacity rejection (HTTP 502/503, UNAVAILABLE).
	// Recovered by countdown, with a shorter fallback than rate limits.
	ClassOverloaded

	// ClassAuth is an invalid or rejected credential (HTTP 401/403).
	ClassAuth

	// ClassModelUnavailable is a removed or deprecated model (HTTP 404).
	ClassModelUnavailable
)

func (c Class) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassOverloaded:
		return "overloaded"
	case ClassAuth:
		return "auth"
	case ClassModelUnavailable:
		return "model_unavailable"
	default:
		return "unknown"
	}
}

// Transient reports whether the class is recovered automatically by the
// countdown controller rather than surfaced as a terminal status.
func (c Class) Transient() bool {
	return c == ClassRateLimit || c == ClassOverloaded
}

// Classification is the result of inspecting a provider error.
type Classification struct {
	Class Class

	// RetryHint is the provider-supplied retry delay, zero when absent.
	RetryHint time.Duration
}

var (
	retryInTextRe  = regexp.MustCompile(`(?i)retry(?:ing)?\s+(?:in|after)\s+([0-9]+(?:\.[0-9]+)?)\s*s`)
	retryDelayRe   = regexp.MustCompile(`retryDelay["':\s]+([0-9]+(?:\.[0-9]+)?)s`)
	pleaseRetryRe  = regexp.MustCompile(`(?i)try again in\s+([0-9]+(?:\.[0-9]+)?)\s*s`)
	textHintRegexs = []*regexp.Regexp{retryInTextRe, retryDelayRe, pleaseRetryRe}
)

// Classify inspects err and returns its failure class plus any retry hint the
// provider supplied. It understands the typed errors of both SDKs and falls
// back to scanning the error text.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var gerr *genai.APIError
	if errors.As(err, &gerr) {
		out := Classification{Class: classifyStatus(gerr.Code, gerr.Status)}
		if out.Class.Transient() {
			out.RetryHint = hintFromDetails(gerr.Details)
			if out.RetryHint == 0 {
				out.RetryHint = hintFromText(gerr.Message)
			}
		}
		return out
	}

	var oerr *oai.Error
	if errors.As(err, &oerr) {
		out := Classification{Class: classifyStatus(oerr.StatusCode, "")}
		if out.Class.Transient() {
			if oerr.Response != nil {
				out.RetryHint = hintFromRetryAfter(oerr.Response.Header.Get("Retry-After"))
			}
			if out.RetryHint == 0 {
				out.RetryHint = hintFromText(oerr.Message)
			}
		}
		return out
	}

	out := Classification{Class: classifyText(err.Error())}
	if out.Class.Transient() {
		out.RetryHint = hintFromText(err.Error())
	}
	return out
}

func classifyStatus(code int, status string) Class {
	switch code {
	case 429:
		return ClassRateLimit
	case 502, 503, 529:
		return ClassOverloaded
	case 401, 403:
		return ClassAuth
	case 404:
		return ClassModelUnavailable
	}
	switch status {
	case "RESOURCE_EXHAUSTED":
		return ClassRateLimit
	case "UNAVAILABLE":
		return ClassOverloaded
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return ClassAuth
	case "NOT_FOUND":
		return ClassModelUnavailable
	}
	return ClassUnknown
}

func classifyText(msg string) Class {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"),
		strings.Contains(lower, "resource_exhausted"), strings.Contains(lower, "429"):
		return ClassRateLimit
	case strings.Contains(lower, "overloaded"), strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "503"):
		return ClassOverloaded
	case strings.Contains(lower, "api key"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "unauthenticated"), strings.Contains(lower, "permission"):
		return ClassAuth
	case strings.Contains(lower, "not found"), strings.Contains(lower, "decommissioned"),
		strings.Contains(lower, "deprecated"):
		return ClassModelUnavailable
	}
	return ClassUnknown
}

// hintFromDetails pulls a google.rpc.RetryInfo delay ("39s") out of the
// structured error details.
func hintFromDetails(details []map[string]any) time.Duration {
	for _, d := range details {
		raw, ok := d["retryDelay"].(string)
		if !ok {
			continue
		}
		if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
			return dur
		}
	}
	return 0
}

func hintFromText(msg string) time.Duration {
	for _, re := range textHintRegexs {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func hintFromRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
