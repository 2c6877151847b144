package store

import "fmt"

// MaxTopicLength is the maximum allowed length for a session topic.
// Matches the VARCHAR(255) constraint in the database schema.
const MaxTopicLength = 255

// ValidateRecord checks a record before it is written.
func ValidateRecord(rec ResponseRecord) error {
	if rec.Topic == "" {
		return fmt.Errorf("response record: topic is required")
	}
	if len(rec.Topic) > MaxTopicLength {
		return fmt.Errorf("response record: topic too long: %d chars (max %d)", len(rec.Topic), MaxTopicLength)
	}
	switch rec.Outcome {
	case OutcomeSuccess, OutcomeRejected:
	default:
		return fmt.Errorf("response record: unknown outcome %q", rec.Outcome)
	}
	return nil
}
