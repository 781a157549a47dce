package domain

// EnrichedField identifies one externally sourced field of an issue.
type EnrichedField uint8

const (
	FieldAddress EnrichedField = 1 << iota
	FieldImages
	FieldSubmitter
)

// String names the field for logs and metrics.
func (f EnrichedField) String() string {
	switch f {
	case FieldAddress:
		return "address"
	case FieldImages:
		return "images"
	case FieldSubmitter:
		return "submitter"
	default:
		return "unknown"
	}
}

// FieldMask is a set of EnrichedField values.
type FieldMask uint8

// Has reports whether f is in the mask.
func (m FieldMask) Has(f EnrichedField) bool {
	return m&FieldMask(f) != 0
}

// With returns the mask with f added.
func (m FieldMask) With(f EnrichedField) FieldMask {
	return m | FieldMask(f)
}

// EnrichedIssue is one record produced by a poll cycle. Fallbacks lists the
// fields whose lookup timed out or failed and now carry their fallback value.
type EnrichedIssue struct {
	Issue     Issue
	Fallbacks FieldMask
}
