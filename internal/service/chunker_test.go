package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitReply_4500(t *testing.T) {
	text := strings.Repeat("a", 1999) + "b" + strings.Repeat("c", 2000) + strings.Repeat("d", 500)

	chunks := SplitReply(text, 2000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2000)
	assert.Len(t, chunks[1], 2000)
	assert.Len(t, chunks[2], 500)
	assert.Equal(t, text, strings.Join(chunks, ""))
	assert.True(t, strings.HasSuffix(chunks[0], "b"))
}

func TestSplitReply_Multibyte(t *testing.T) {
	text := strings.Repeat("愛", 2001)

	chunks := SplitReply(text, 2000)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2000, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, "愛", chunks[1])
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
	}
}

func TestSplitReply_Edges(t *testing.T) {
	assert.Nil(t, SplitReply("", 2000))
	assert.Equal(t, []string{"short"}, SplitReply("short", 2000))
	assert.Equal(t, []string{strings.Repeat("x", 2000)}, SplitReply(strings.Repeat("x", 2000), 2000))
	// 非法大小回退到默认值
	assert.Len(t, SplitReply(strings.Repeat("x", 2001), 0), 2)
}
