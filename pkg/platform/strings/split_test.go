package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLower(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"repeated params", []string{"approved", "Pending"}, []string{"approved", "pending"}},
		{"comma separated", []string{"approved, pending,,"}, []string{"approved", "pending"}},
		{"duplicates across forms", []string{"Approved,pending", " approved "}, []string{"approved", "pending"}},
		{"blank only", []string{" ", ","}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLower(tt.in))
		})
	}
}
