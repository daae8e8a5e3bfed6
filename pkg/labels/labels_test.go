package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTweetEvalTable(t *testing.T) {
	table := TweetEval()
	require.Equal(t, 20, table.Len())
	require.NoError(t, table.Validate(20))

	seen := make(map[string]bool)
	for class := 0; class < table.Len(); class++ {
		g, err := table.Emoji(class)
		require.NoError(t, err)
		assert.False(t, seen[g], "duplicate glyph %s", g)
		seen[g] = true
	}

	glyph, err := table.Emoji(12)
	require.NoError(t, err)
	assert.Equal(t, "☀", glyph)

	glyph, err = table.Emoji(0)
	require.NoError(t, err)
	assert.Equal(t, "❤", glyph)
}

func TestTableIsImmutable(t *testing.T) {
	src := []string{"a", "b"}
	custom := NewTable(src)
	src[0] = "z"
	glyph, err := custom.Emoji(0)
	require.NoError(t, err)
	assert.Equal(t, "a", glyph)
}

func TestEmojiOutOfRange(t *testing.T) {
	table := TweetEval()
	for _, class := range []int{-1, 20, 100} {
		_, err := table.Emoji(class)
		assert.ErrorIs(t, err, ErrUnknownLabel)
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, TweetEval().Validate(19))
	assert.Error(t, NewTable([]string{"a", ""}).Validate(2))
	assert.NoError(t, NewTable([]string{"a", "b"}).Validate(2))
}

func TestParseClass(t *testing.T) {
	tests := []struct {
		label   string
		want    int
		wantErr bool
	}{
		{"LABEL_0", 0, false},
		{"LABEL_19", 19, false},
		{"7", 7, false},
		{"my_fancy_label_3", 3, false},
		{"LABEL_", 0, true},
		{"LABEL_x", 0, true},
		{"LABEL_-1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseClass(tt.label)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLabel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	table := TweetEval()

	class, glyph, err := table.Lookup("LABEL_2")
	require.NoError(t, err)
	assert.Equal(t, 2, class)
	assert.Equal(t, "😂", glyph)

	_, _, err = table.Lookup("LABEL_20")
	assert.ErrorIs(t, err, ErrUnknownLabel)

	assert.True(t, table.Contains("🔥"))
	assert.False(t, table.Contains("🙃"))
	assert.Equal(t, "LABEL_4", ClassLabel(4))
}
