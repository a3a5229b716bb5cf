package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSet(t *testing.T) {
	set := MatchIDs([]Item{{ID: 7}, {ID: 3}, {ID: 7}})

	assert.True(t, set.Match(3))
	assert.True(t, set.Match(7))
	assert.False(t, set.Match(4))
	assert.Equal(t, []int{3, 7}, set.IDs())
}

func TestChangeEvent_Owner(t *testing.T) {
	type tag struct{ name string }
	owner := &tag{name: "loader"}

	events := []ChangeEvent{
		Added{Items: []Item{{ID: 1}}, Owner: owner},
		Removed{Matcher: MatchIDs([]Item{{ID: 1}}), Owner: owner},
		Updated{Items: []Item{{ID: 1}}, Owner: owner},
	}
	for _, e := range events {
		assert.Same(t, owner, e.EventOwner())
	}

	// Owners are never validated; nil passes through.
	assert.Nil(t, Added{}.EventOwner())
}
