package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.Equal(t, "a:b", PairKey("b", "a"))
}

func TestPairKeyDistinctPairsDiffer(t *testing.T) {
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}
