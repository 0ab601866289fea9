package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeAtLeast(t *testing.T) {
	tests := []struct {
		name string
		s    Scope
		o    Scope
		want bool
	}{
		{"write covers read", ScopeWrite, ScopeRead, true},
		{"delete covers write", ScopeDelete, ScopeWrite, true},
		{"change_membership covers delete", ScopeChangeMembership, ScopeDelete, true},
		{"write does not cover delete", ScopeWrite, ScopeDelete, false},
		{"read does not cover write", ScopeRead, ScopeWrite, false},
		{"same scope", ScopeDelete, ScopeDelete, true},
		{"non_public_read exact match", ScopeNonPublicRead, ScopeNonPublicRead, true},
		{"non_public_read not ordered above read", ScopeNonPublicRead, ScopeRead, false},
		{"delete does not imply non_public_read", ScopeDelete, ScopeNonPublicRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.AtLeast(tt.o))
		})
	}
}

func TestMaxScope(t *testing.T) {
	assert.Equal(t, ScopeDelete, MaxScope(ScopeWrite, ScopeDelete))
	assert.Equal(t, ScopeDelete, MaxScope(ScopeDelete, ScopeWrite))
	assert.Equal(t, ScopeWrite, MaxScope(ScopeWrite, ScopeWrite))
}

func TestScopeOrdered(t *testing.T) {
	assert.True(t, ScopeWrite.Ordered())
	assert.False(t, ScopeNonPublicRead.Ordered())
}
