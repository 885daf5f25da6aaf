package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntSetSliceIsSortedAndDeduped(t *testing.T) {
	s := NewIntSet(3, 1, 2, 1, 3)
	assert.Equal(t, []int{1, 2, 3}, s.Slice())
}

func TestIntSetContainsAll(t *testing.T) {
	s := NewIntSet(0, 1, 2, 3)
	assert.True(t, s.ContainsAll([]int{1, 3}))
	assert.False(t, s.ContainsAll([]int{1, 4}))
}

func TestIntSetAddRemove(t *testing.T) {
	s := NewIntSet(0, 1)
	s.Remove(0)
	assert.False(t, s.Contains(0))
	assert.True(t, s.Contains(1))

	s.Add(5)
	assert.True(t, s.Contains(5))
}

func TestIntSetCloneIsIndependent(t *testing.T) {
	original := NewIntSet(1, 2)
	clone := original.Clone()
	clone.Remove(1)

	assert.True(t, original.Contains(1), "removing from the clone must not affect the original")
	assert.False(t, clone.Contains(1))
}
