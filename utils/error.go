package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// validation errors: reported to the caller immediately, never retried
var (
	ErrorInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrorInvalidMarkup   = errors.New("markup percentage must not be negative")
	ErrorInvalidSequence = errors.New("line sequence must be greater than zero")
)

// ErrorUnresolvedComponent is returned when a detection with status new or
// rejected is accepted into the BOM without an explicit component override.
var ErrorUnresolvedComponent = errors.New("detection must be resolved to a library component before acceptance")

// transient collaborator failures: safe for the caller to retry with backoff
var (
	ErrorCatalogUnavailable = errors.New("component library is unavailable")
	ErrorStoreTimeout       = errors.New("store operation timed out")
	ErrorLockNotObtained    = errors.New("could not obtain project lock")
)

// ErrorInvalidReviewState is returned when a review action is applied to a
// detection whose current status does not allow it.
var ErrorInvalidReviewState = errors.New("detection is not in a reviewable state")

// ErrorDetectionAccepted is returned for any mutation of a detection that has
// already been converted into a BOM line. Acceptance is one-way and one-time.
var ErrorDetectionAccepted = errors.New("detection was already accepted into the bill of materials")
