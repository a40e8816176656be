package aggregate

import "fmt"

type (
	OutcomeKind int

	// Outcome is the result of a single unit of work performed by
	// a worker. Workers never mutate shared state directly; they
	// submit an Outcome to the Aggregator which applies it.
	Outcome struct {
		Identifier string
		Kind       OutcomeKind

		// Metadata is the resolver payload, set for Resolved outcomes
		Metadata map[string]any

		// LocalPath is the materialised media file, set for
		// Downloaded and Reused outcomes
		LocalPath string

		// Reason is a short description of the failure, set for
		// every failure outcome
		Reason string
	}
)

const (
	// Resolved indicates the resolver returned metadata for the identifier
	Resolved OutcomeKind = iota

	// ClassifiedFailure is a permanent resolution failure (unsupported content,
	// invalid link) which is recorded in the fetch-error log
	ClassifiedFailure

	// TransientFailure is a resolution failure which may succeed on a
	// later run. It is never persisted.
	TransientFailure

	// AuthFailure indicates the resolver or transport rejected our credentials
	AuthFailure

	// Downloaded indicates the media was fetched and written to LocalPath
	Downloaded

	// Reused indicates the media already existed on disk at LocalPath
	Reused

	// BrokenLink is a per-item download failure
	BrokenLink
)

func (k OutcomeKind) String() string {
	switch k {
	case Resolved:
		return fmt.Sprintf("RESOLVED[%d]", k)
	case ClassifiedFailure:
		return fmt.Sprintf("CLASSIFIED_FAILURE[%d]", k)
	case TransientFailure:
		return fmt.Sprintf("TRANSIENT_FAILURE[%d]", k)
	case AuthFailure:
		return fmt.Sprintf("AUTH_FAILURE[%d]", k)
	case Downloaded:
		return fmt.Sprintf("DOWNLOADED[%d]", k)
	case Reused:
		return fmt.Sprintf("REUSED[%d]", k)
	case BrokenLink:
		return fmt.Sprintf("BROKEN_LINK[%d]", k)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", k)
	}
}

// IsSuccess returns true for the outcomes which count towards a
// stages success target.
func (k OutcomeKind) IsSuccess() bool {
	return k == Resolved || k == Downloaded || k == Reused
}
