package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetChapters(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 1},
		{3000, 1},
		{5000, 1},
		{10000, 2},
		{50000, 10},
		{52500, 10},
	}
	for _, tt := range tests {
		p := &Project{TargetLength: tt.length}
		assert.Equal(t, tt.want, p.TargetChapters(), "target length %d", tt.length)
	}
}

func TestWritingComplete(t *testing.T) {
	// A 10,000-word target means two chapters.
	p := &Project{TargetLength: 10000}
	assert.False(t, p.WritingComplete())

	p.ChaptersCompleted = 1
	p.TotalWords = 4800
	assert.False(t, p.WritingComplete())

	// Chapter count reached.
	p.ChaptersCompleted = 2
	p.TotalWords = 9100
	assert.True(t, p.WritingComplete())

	// Word target reached early also completes.
	p = &Project{TargetLength: 10000, ChaptersCompleted: 1, TotalWords: 10200}
	assert.True(t, p.WritingComplete())
}

func TestStoryPosition(t *testing.T) {
	tests := []struct {
		chapter int
		total   int
		want    string
	}{
		{1, 10, "opening"},
		{1, 1, "opening"},
		{10, 10, "resolution"},
		{12, 10, "resolution"},
		{2, 10, "setup"},
		{5, 10, "middle"},
		{7, 10, "middle"},
		{8, 10, "climax"},
		{9, 10, "climax"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StoryPosition(tt.chapter, tt.total),
			"chapter %d of %d", tt.chapter, tt.total)
	}
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords("   \n\t"))
	assert.Equal(t, 2, CountWords("hello world"))
	assert.Equal(t, 4, CountWords("  spread\tacross \n multiple lines "))
}
