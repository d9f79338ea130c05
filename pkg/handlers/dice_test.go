package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotation(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		want     DiceSpec
		wantErr  bool
	}{
		{name: "bare die", notation: "d20", want: DiceSpec{Count: 1, Sides: 20}},
		{name: "with modifier", notation: "2d6+3", want: DiceSpec{Count: 2, Sides: 6, Modifier: 3}},
		{name: "negative modifier with spaces", notation: " 4D8 - 1 ", want: DiceSpec{Count: 4, Sides: 8, Modifier: -1}},
		{name: "too many dice", notation: "101d6", wantErr: true},
		{name: "one sided", notation: "1d1", wantErr: true},
		{name: "largest modifier", notation: "1d6-1000", want: DiceSpec{Count: 1, Sides: 6, Modifier: -1000}},
		{name: "modifier out of range", notation: "1d6+1001", wantErr: true},
		{name: "overflowing modifier", notation: "1d6+99999999999999999999", wantErr: true},
		{name: "overflowing count", notation: "99999999999999999999d6", wantErr: true},
		{name: "overflowing sides", notation: "1d99999999999999999999", wantErr: true},
		{name: "garbage", notation: "fireball", wantErr: true},
		{name: "empty", notation: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNotation(tt.notation)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidNotation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiceSpecString(t *testing.T) {
	assert.Equal(t, "1d20", DiceSpec{Count: 1, Sides: 20}.String())
	assert.Equal(t, "2d6+3", DiceSpec{Count: 2, Sides: 6, Modifier: 3}.String())
	assert.Equal(t, "4d8-1", DiceSpec{Count: 4, Sides: 8, Modifier: -1}.String())
}

func TestDiceDeterministic(t *testing.T) {
	spec := DiceSpec{Count: 5, Sides: 12, Modifier: 2}
	a := NewDice(7).Roll(spec)
	b := NewDice(7).Roll(spec)
	assert.Equal(t, a, b)

	sum := 0
	for _, r := range a.Results {
		assert.GreaterOrEqual(t, r, 1)
		assert.LessOrEqual(t, r, 12)
		sum += r
	}
	assert.Equal(t, sum+2, a.Total)
}

func TestAbilityModifier(t *testing.T) {
	for score, want := range map[int]int{1: -5, 8: -1, 9: -1, 10: 0, 11: 0, 14: 2, 20: 5, 30: 10} {
		assert.Equal(t, want, abilityModifier(score), "score %d", score)
	}
}
