package messages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRejectsIncompleteInput(t *testing.T) {
	svc := New(nil)

	cases := []struct {
		name  string
		phone string
		text  string
	}{
		{"", "0901234567", "chuc may man"},
		{"Nguyen Van A", "", "chuc may man"},
		{"Nguyen Van A", "0901234567", ""},
		{"   ", "0901234567", "chuc may man"},
		{"Nguyen Van A", "0901234567", "   "},
	}

	for _, tc := range cases {
		_, err := svc.Submit(context.Background(), tc.name, tc.phone, tc.text, true)
		assert.ErrorIs(t, err, ErrIncompleteMessage)
	}
}
