package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_Unpinned(t *testing.T) {
	done := make(chan struct{})
	require.NoError(t, Go(-1, func() { close(done) }))
	<-done
}

func TestSpinner_ResetsAfterBudget(t *testing.T) {
	s := &Spinner{Budget: 3}
	s.Miss()
	s.Miss()
	assert.Equal(t, 2, s.miss)
	s.Miss()
	assert.Equal(t, 0, s.miss, "budget spent, relaxed and reset")

	s.Miss()
	s.Hit()
	assert.Equal(t, 0, s.miss)
}
