package lobby_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/lobby"
)

func participant(i int) domain.Participant {
	return domain.Participant{ID: fmt.Sprintf("p%d", i), DisplayName: fmt.Sprintf("player %d", i)}
}

func TestQueue_PairAll(t *testing.T) {
	for n := range 9 {
		t.Run(fmt.Sprintf("%d waiting", n), func(t *testing.T) {
			q := lobby.NewQueue()
			for i := range n {
				require.True(t, q.Enqueue(participant(i)))
			}

			pairs := q.PairAll()

			assert.Len(t, pairs, n/2)
			assert.Equal(t, n%2, q.Len(), "at most one participant stays queued")

			for i, p := range pairs {
				assert.NotEqual(t, p[0].ID, p[1].ID)
				assert.Equal(t, participant(2*i), p[0], "pairs follow arrival order")
				assert.Equal(t, participant(2*i+1), p[1])
			}

			if n%2 == 1 {
				assert.True(t, q.Contains(participant(n-1).ID), "the newest participant waits for the next pass")
			}
		})
	}
}

func TestQueue_Enqueue(t *testing.T) {
	q := lobby.NewQueue()

	assert.True(t, q.Enqueue(participant(1)))
	assert.False(t, q.Enqueue(participant(1)), "a participant is queued at most once")
	assert.Equal(t, 1, q.Len())

	assert.True(t, q.Enqueue(participant(2)))
	assert.True(t, q.Enqueue(participant(3)))
	assert.True(t, q.Remove(participant(2).ID))
	assert.False(t, q.Remove(participant(2).ID))

	pairs := q.PairAll()
	require.Len(t, pairs, 1)
	assert.Equal(t, [2]domain.Participant{participant(1), participant(3)}, pairs[0])

	assert.True(t, q.Enqueue(participant(1)), "a paired participant can queue again")
}

func TestClock_Tick(t *testing.T) {
	c := lobby.NewClock(3)
	require.Equal(t, 3, c.Remaining())

	type tick struct {
		remaining int
		expired   bool
	}

	var got []tick
	for range 7 {
		r, e := c.Tick()
		got = append(got, tick{r, e})
	}

	assert.Equal(t, []tick{
		{2, false},
		{1, false},
		{3, true},
		{2, false},
		{1, false},
		{3, true},
		{2, false},
	}, got)
}

func TestClock_DefaultPeriod(t *testing.T) {
	c := lobby.NewClock(0)
	assert.Equal(t, lobby.DefaultPeriod, c.Period())
	assert.Equal(t, 140, c.Remaining())
}
