package audiobook

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func joinChunks(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

func TestChunkText(t *testing.T) {
	t.Run("Should split at sentence terminators", func(t *testing.T) {
		chunks, err := ChunkText("Hello world. This is a test! Bye.", 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"Hello world.", " This is a test!", " Bye."}, chunkTexts(chunks))
	})

	t.Run("Should return the whole text when it fits", func(t *testing.T) {
		chunks, err := ChunkText("Short text.", 100)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Short text.", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Equal(t, len("Short text."), chunks[0].End)
	})

	t.Run("Should keep the last character when the text length equals maxLen", func(t *testing.T) {
		chunks, err := ChunkText("abcdef", 6)
		require.NoError(t, err)
		assert.Equal(t, []string{"abcdef"}, chunkTexts(chunks))
	})

	t.Run("Should return no chunks for empty text", func(t *testing.T) {
		chunks, err := ChunkText("", 10)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Should reject non-positive maxLen", func(t *testing.T) {
		_, err := ChunkText("abc", 0)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("Should hard cut at maxLen when no terminator exists", func(t *testing.T) {
		chunks, err := ChunkText("abcdefghij", 4)
		require.NoError(t, err)
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunkTexts(chunks))
	})

	t.Run("Should fail with strict policy when no terminator exists", func(t *testing.T) {
		_, err := ChunkText("abcdefghij", 4, WithPolicy(Strict))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrChunking)

		var noTerm *ErrNoTerminator
		require.ErrorAs(t, err, &noTerm)
		assert.Equal(t, 0, noTerm.Start)
		assert.Equal(t, 4, noTerm.MaxLen)
	})

	t.Run("Should honor custom terminators", func(t *testing.T) {
		chunks, err := ChunkText("こんにちは。元気ですか？はい。", 8, WithTerminators("。？"))
		require.NoError(t, err)
		assert.Equal(t, []string{"こんにちは。", "元気ですか？", "はい。"}, chunkTexts(chunks))
	})

	t.Run("Should count characters not bytes and keep byte offsets", func(t *testing.T) {
		text := "ああああ。いいいい。"
		chunks, err := ChunkText(text, 5, WithTerminators("。"))
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		for _, c := range chunks {
			assert.Equal(t, text[c.Start:c.End], c.Text)
			assert.LessOrEqual(t, c.Len(), 5)
		}
	})

	t.Run("Should keep invalid UTF-8 bytes in place", func(t *testing.T) {
		text := "ab\xffcd. ef."
		chunks, err := ChunkText(text, 6)
		require.NoError(t, err)
		assert.Equal(t, text, joinChunks(chunks))
	})
}

func TestChunkTextProperties(t *testing.T) {
	texts := []string{
		"One. Two! Three? Four. Five six seven eight nine ten. Eleven!",
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50),
		strings.Repeat("x", 97) + ". tail",
		"吾輩は猫である。名前はまだ無い。どこで生れたかとんと見当がつかぬ。",
	}
	terminators := ".?!。"

	for _, text := range texts {
		for _, maxLen := range []int{1, 3, 7, 16, 50, 4096} {
			chunks, err := ChunkText(text, maxLen, WithTerminators(terminators))
			require.NoError(t, err)

			// 連結すると元の本文に戻る
			assert.Equal(t, text, joinChunks(chunks))

			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.LessOrEqual(t, c.Len(), maxLen)
				assert.Equal(t, text[c.Start:c.End], c.Text)
				if i > 0 {
					assert.Equal(t, chunks[i-1].End, c.Start)
				}

				// 最終チャンク以外は、ウィンドウ内に文末記号があれば文末で終わる
				if i == len(chunks)-1 {
					continue
				}
				window := []rune(text[c.Start:])
				if len(window) > maxLen {
					window = window[:maxLen]
				}
				if strings.ContainsAny(string(window), terminators) {
					last, _ := utf8.DecodeLastRuneInString(c.Text)
					assert.True(t, strings.ContainsRune(terminators, last), "chunk %d %q", i, c.Text)
				}
			}
		}
	}
}
