package generator

import (
	"fmt"
	"strings"
)

// PlaceholderReason 说明某个字段为何没有真实内容。
type PlaceholderReason string

const (
	ReasonNone            PlaceholderReason = ""
	ReasonSkippedByUser   PlaceholderReason = "skipped-by-user"
	ReasonUpstreamFailed  PlaceholderReason = "upstream-failed"
	ReasonGenerationError PlaceholderReason = "generation-error"
)

const (
	skippedSuffix    = " not generated (skipped by user)."
	errorPrefix      = "Error: "
	upstreamMarker   = " not generated (upstream "
	generationMarker = " generation error: "
)

func skippedPlaceholder(label string) string {
	return label + skippedSuffix
}

func upstreamPlaceholder(label, upstream string) string {
	return fmt.Sprintf("%s%s%s%s failed).", errorPrefix, label, upstreamMarker, upstream)
}

func errorPlaceholder(label, diagnostic string) string {
	return errorPrefix + label + generationMarker + diagnostic
}

// ClassifyPlaceholder maps a package value back to the reason it was
// substituted. Real content yields ReasonNone.
func ClassifyPlaceholder(s string) PlaceholderReason {
	switch {
	case strings.HasSuffix(s, skippedSuffix) && !strings.HasPrefix(s, errorPrefix):
		return ReasonSkippedByUser
	case strings.HasPrefix(s, errorPrefix) && strings.Contains(s, upstreamMarker):
		return ReasonUpstreamFailed
	case strings.HasPrefix(s, errorPrefix) && strings.Contains(s, generationMarker):
		return ReasonGenerationError
	default:
		return ReasonNone
	}
}

// IsErrorPlaceholder reports whether s marks a technical failure, as
// opposed to real content or a stage the user turned off.
func IsErrorPlaceholder(s string) bool {
	r := ClassifyPlaceholder(s)
	return r == ReasonUpstreamFailed || r == ReasonGenerationError
}
