package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_OverlapWindows(t *testing.T) {
	p := &Processor{}
	text := strings.Repeat("a", 2500)

	chunks := p.splitText(text, 1000, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	// 最后一个分块覆盖剩余内容
	assert.Len(t, chunks[2], 2500-2*900)

	// 相邻分块有 100 字符的重叠
	assert.Equal(t, chunks[0][900:], chunks[1][:100])
}

func TestSplitText_MultiByteRunesNotBroken(t *testing.T) {
	p := &Processor{}
	text := strings.Repeat("文", 1500)

	chunks := p.splitText(text, 1000, 100)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		// 按字符切分，不能把多字节字符切成半个
		for _, r := range c {
			assert.Equal(t, '文', r)
		}
	}
	assert.Len(t, []rune(chunks[0]), 1000)
}

func TestSplitText_ShortTextSingleChunk(t *testing.T) {
	p := &Processor{}
	chunks := p.splitText("short text", 1000, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitText_InvalidOverlapFallsBackToSimpleSplit(t *testing.T) {
	p := &Processor{}
	text := strings.Repeat("b", 250)

	chunks := p.splitText(text, 100, 100)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[2], 50)
}

func TestSplitText_Empty(t *testing.T) {
	p := &Processor{}
	assert.Nil(t, p.splitText("", 1000, 100))
}
