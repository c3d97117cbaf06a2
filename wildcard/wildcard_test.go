package wildcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReflexivity(t *testing.T) {
	names := []string{"HELLO.COM", "A.TXT", "README", "X.Y", "FOOBARBA.ZZZ"}
	for _, n := range names {
		assert.True(t, Matches(n, n), n)
	}
}

func TestStarDotStarMatchesEveryNonHiddenName(t *testing.T) {
	names := []string{"HELLO.COM", "A.TXT", "README", "NOEXT", "X.Y"}
	for _, n := range names {
		assert.True(t, Matches(n, "*.*"), n)
	}
}

func TestStarDotStarRejectsHidden(t *testing.T) {
	assert.False(t, Matches(".GITKEEP", "*.*"))
}

func TestDotEntriesStillMatch(t *testing.T) {
	assert.True(t, Matches(".", "*.*"))
	assert.True(t, Matches("..", "*.*"))
}

func TestQuestionMarks(t *testing.T) {
	assert.True(t, Matches("HELLO.COM", "?ELLO.COM"))
	assert.True(t, Matches("HELLO.COM", "HELLO.???"))
	assert.False(t, Matches("HELLO.COM", "WORLD.COM"))
}

func TestPartialNameWildcard(t *testing.T) {
	assert.True(t, Matches("HELLO.COM", "HE*.COM"))
	assert.True(t, Matches("HELLO.COM", "HE*.*"))
}

func TestExactEqualityFastPath(t *testing.T) {
	assert.True(t, Matches("hello.com", "HELLO.COM"))
}

func TestOverlongExtensionSanityCheck(t *testing.T) {
	// DOSBox-compatible: a raw pattern extension longer than 3 chars whose
	// 4th char isn't '*' is rejected outright.
	assert.False(t, Matches("HELLO.COM", "*.COMX"))
	assert.True(t, Matches("HELLO.COM", "*.COM*"))
}
