package aggregate

import "strings"

// MaxReasonLength is the maximum number of characters of an error
// message kept as the reason of a failure outcome.
const MaxReasonLength = 100

// TruncateReason collapses the message provided to a single line and
// shortens it to at most MaxReasonLength characters.
func TruncateReason(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	runes := []rune(message)
	if len(runes) <= MaxReasonLength {
		return message
	}

	return string(runes[:MaxReasonLength])
}
