package camelot

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestParse(t *testing.T) {
	k, err := Parse("8A")
	assert.NoError(t, err)
	assert.Equal(t, 8, k.Number)
	assert.Equal(t, byte(ModeMinor), k.Mode)
	assert.Equal(t, "8A", k.String())

	k, err = Parse("12B")
	assert.NoError(t, err)
	assert.Equal(t, 12, k.Number)
	assert.Equal(t, byte(ModeMajor), k.Mode)

	_, err = Parse("")
	assert.Error(t, err)

	_, err = Parse("13A")
	assert.Error(t, err)

	_, err = Parse("0B")
	assert.Error(t, err)

	_, err = Parse("8C")
	assert.Error(t, err)

	_, err = Parse("A8")
	assert.Error(t, err)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("8A", "8A"))
	assert.Equal(t, 1, Distance("8A", "9A"))
	assert.Equal(t, 0, Distance("8A", "8B"))
	assert.Equal(t, 6, Distance("1A", "7A"))

	// Wheel wraps around
	assert.Equal(t, 1, Distance("12A", "1A"))
	assert.Equal(t, 2, Distance("11B", "1B"))

	// Cross-mode pays the mode change penalty
	assert.Equal(t, 2, Distance("8A", "9B"))
	assert.Equal(t, 7, Distance("1A", "7B"))

	// Unparseable keys never reject on distance
	assert.Equal(t, 0, Distance("", "8A"))
	assert.Equal(t, 0, Distance("8A", "junk"))
}

func TestDistanceSymmetric(t *testing.T) {
	keys := []string{"1A", "3A", "5B", "8A", "8B", "12B"}
	for _, k1 := range keys {
		for _, k2 := range keys {
			d := Distance(k1, k2)
			assert.Equal(t, d, Distance(k2, k1), "distance(%s,%s)", k1, k2)
			assert.True(t, d >= 0 && d <= 7, "distance(%s,%s)=%d", k1, k2, d)
		}
	}
}

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible("8A", "8A"))
	assert.True(t, Compatible("8A", "9A"))
	assert.True(t, Compatible("8A", "7A"))
	assert.True(t, Compatible("8A", "8B"))
	assert.False(t, Compatible("8A", "10A"))
	assert.False(t, Compatible("8A", "9B"))
}

func TestToSemitone(t *testing.T) {
	// 8A is A minor, root A = 9 semitones above C
	s, err := ToSemitone("8A")
	assert.NoError(t, err)
	assert.Equal(t, 9, s)

	// 8B is C major
	s, err = ToSemitone("8B")
	assert.NoError(t, err)
	assert.Equal(t, 0, s)

	// 5A is C minor
	s, err = ToSemitone("5A")
	assert.NoError(t, err)
	assert.Equal(t, 0, s)

	_, err = ToSemitone("nope")
	assert.Error(t, err)
}

func TestSemitoneDiff(t *testing.T) {
	d, err := SemitoneDiff("8A", "8A")
	assert.NoError(t, err)
	assert.Equal(t, 0, d)

	// 8A (A minor) -> 9A (E minor): +7 folds to -5
	d, err = SemitoneDiff("8A", "9A")
	assert.NoError(t, err)
	assert.Equal(t, -5, d)

	// 8A (A minor) -> 3A (Bb minor): one semitone up
	d, err = SemitoneDiff("8A", "3A")
	assert.NoError(t, err)
	assert.Equal(t, 1, d)

	for _, pair := range [][2]string{{"1A", "7B"}, {"2B", "11A"}, {"6A", "6B"}} {
		d, err := SemitoneDiff(pair[0], pair[1])
		assert.NoError(t, err)
		assert.True(t, d >= -6 && d <= 6)
	}
}
