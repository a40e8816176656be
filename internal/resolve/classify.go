package resolve

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal/aggregate"
)

type (
	FailureType int

	// Failure is a resolver error which has been classified in to
	// one of the failure types below.
	Failure struct {
		error
		fType FailureType
	}

	// Classifier decides how a resolver error should be treated. Typed
	// errors (the sentinels below) are checked first, and only if none
	// match are the configured message markers consulted.
	Classifier struct {
		authMarkers      []string
		permanentMarkers []string
	}
)

const (
	// TRANSIENT_FAILURE may succeed on a later run, and so is not persisted.
	TRANSIENT_FAILURE FailureType = iota

	// PERMANENT_FAILURE will never succeed, and is written to the fetch-error log.
	PERMANENT_FAILURE

	// AUTH_FAILURE aborts the stage.
	AUTH_FAILURE
)

var (
	ErrUnauthorized       = errors.New("resolver rejected credentials")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrInvalidLink        = errors.New("invalid link")
)

func NewClassifier(authMarkers []string, permanentMarkers []string) *Classifier {
	return &Classifier{authMarkers: normaliseMarkers(authMarkers), permanentMarkers: normaliseMarkers(permanentMarkers)}
}

func (c *Classifier) Classify(err error) Failure {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Failure{error: err, fType: TRANSIENT_FAILURE}
	case errors.Is(err, ErrUnauthorized):
		return Failure{error: err, fType: AUTH_FAILURE}
	case errors.Is(err, ErrUnsupportedContent), errors.Is(err, ErrInvalidLink):
		return Failure{error: err, fType: PERMANENT_FAILURE}
	}

	message := strings.ToLower(err.Error())
	if containsAny(message, c.authMarkers) {
		return Failure{error: err, fType: AUTH_FAILURE}
	} else if containsAny(message, c.permanentMarkers) {
		return Failure{error: err, fType: PERMANENT_FAILURE}
	}

	return Failure{error: err, fType: TRANSIENT_FAILURE}
}

func (f Failure) Type() FailureType { return f.fType }

// Reason returns the shortened error message stored alongside
// the failure outcome.
func (f Failure) Reason() string { return aggregate.TruncateReason(f.Error()) }

// OutcomeKind maps the failure type to the outcome submitted to the aggregator.
func (f Failure) OutcomeKind() aggregate.OutcomeKind {
	switch f.fType {
	case AUTH_FAILURE:
		return aggregate.AuthFailure
	case PERMANENT_FAILURE:
		return aggregate.ClassifiedFailure
	default:
		return aggregate.TransientFailure
	}
}

func (t FailureType) String() string {
	switch t {
	case TRANSIENT_FAILURE:
		return "transient"
	case PERMANENT_FAILURE:
		return "permanent"
	case AUTH_FAILURE:
		return "authorization"
	default:
		return "unknown"
	}
}

func normaliseMarkers(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}

	return out
}

func containsAny(message string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(message, m) {
			return true
		}
	}

	return false
}
