package reservation_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizwire/quizwire/internal/quiz/reservation"
)

func TestSlot_Reserve(t *testing.T) {
	t.Run("first caller wins", func(t *testing.T) {
		s := reservation.NewSlot()

		require.NoError(t, s.Reserve("a"))

		state, holder := s.Current()
		assert.Equal(t, reservation.StatePending, state)
		assert.Equal(t, "a", holder)
	})

	t.Run("loser is told the actual winner", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))

		err := s.Reserve("b")

		var reserved *reservation.AlreadyReservedError
		require.ErrorAs(t, err, &reserved)
		assert.Equal(t, "a", reserved.Holder)
	})

	t.Run("exactly one concurrent caller succeeds", func(t *testing.T) {
		s := reservation.NewSlot()

		const n = 50
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.Reserve(string(rune('a' + i%26)))
			}(i)
		}
		wg.Wait()

		_, winner := s.Current()
		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			var reserved *reservation.AlreadyReservedError
			require.ErrorAs(t, err, &reserved)
			assert.Equal(t, winner, reserved.Holder, "losers must see the actual winner")
		}
		assert.Equal(t, 1, wins)
	})
}

func TestSlot_Confirm(t *testing.T) {
	t.Run("pending holder can confirm", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))

		require.NoError(t, s.Confirm("a"))

		state, _ := s.Current()
		assert.Equal(t, reservation.StateConfirmed, state)
	})

	t.Run("non-holder cannot confirm", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))

		assert.ErrorIs(t, s.Confirm("b"), reservation.ErrNotHolder)
	})

	t.Run("cannot confirm a free slot", func(t *testing.T) {
		s := reservation.NewSlot()

		assert.ErrorIs(t, s.Confirm("a"), reservation.ErrNotHolder)
	})
}

func TestSlot_AnswerOutcomes(t *testing.T) {
	t.Run("wrong answer frees the slot for a retry", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))
		require.NoError(t, s.Confirm("a"))

		require.NoError(t, s.MarkWrong())

		// Another participant gets the freed slot.
		require.NoError(t, s.Reserve("b"))
		_, holder := s.Current()
		assert.Equal(t, "b", holder)
	})

	t.Run("right answer ends the lifecycle", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))
		require.NoError(t, s.Confirm("a"))

		require.NoError(t, s.MarkRight())

		state, holder := s.Current()
		assert.Equal(t, reservation.StateFree, state)
		assert.Empty(t, holder)
	})

	t.Run("outcomes require a confirmed reservation", func(t *testing.T) {
		s := reservation.NewSlot()

		assert.ErrorIs(t, s.MarkWrong(), reservation.ErrNotConfirmed)
		assert.ErrorIs(t, s.MarkRight(), reservation.ErrNotConfirmed)

		require.NoError(t, s.Reserve("a"))
		assert.ErrorIs(t, s.MarkWrong(), reservation.ErrNotConfirmed)
	})
}

func TestSlot_Release(t *testing.T) {
	t.Run("frees a pending hold", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))

		assert.True(t, s.Release("a"))

		state, _ := s.Current()
		assert.Equal(t, reservation.StateFree, state)
	})

	t.Run("frees a confirmed hold", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))
		require.NoError(t, s.Confirm("a"))

		assert.True(t, s.Release("a"))
	})

	t.Run("ignores non-holders", func(t *testing.T) {
		s := reservation.NewSlot()
		require.NoError(t, s.Reserve("a"))

		assert.False(t, s.Release("b"))
		assert.False(t, reservation.NewSlot().Release("a"))

		_, holder := s.Current()
		assert.Equal(t, "a", holder)
	})
}

func TestSlot_FullScenario(t *testing.T) {
	// A reserves, B races and loses, A confirms, answer is right.
	s := reservation.NewSlot()

	require.NoError(t, s.Reserve("a"))

	err := s.Reserve("b")
	var reserved *reservation.AlreadyReservedError
	require.True(t, errors.As(err, &reserved))
	assert.Equal(t, "a", reserved.Holder)

	require.NoError(t, s.Confirm("a"))
	require.NoError(t, s.MarkRight())

	state, _ := s.Current()
	assert.Equal(t, reservation.StateFree, state)
}
