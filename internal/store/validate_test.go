package store

import (
	"strings"
	"testing"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     ResponseRecord
		wantErr bool
	}{
		{"ok", ResponseRecord{Topic: "t", Outcome: OutcomeSuccess}, false},
		{"rejected", ResponseRecord{Topic: "t", Outcome: OutcomeRejected}, false},
		{"no_topic", ResponseRecord{Outcome: OutcomeSuccess}, true},
		{"max_length", ResponseRecord{Topic: strings.Repeat("a", 255), Outcome: OutcomeSuccess}, false},
		{"too_long", ResponseRecord{Topic: strings.Repeat("a", 256), Outcome: OutcomeSuccess}, true},
		{"bad_outcome", ResponseRecord{Topic: "t", Outcome: "maybe"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
