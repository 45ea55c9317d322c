package book

import (
	"strings"
	"time"

	"github.com/c360studio/bookwright/llm"
)

// wordsPerChapter is the assumed chapter length used to derive the chapter
// count from a word target.
const wordsPerChapter = 5000

// Project is a book project and its accumulated production state.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	Style       string `json:"style"`

	// TargetLength is the desired total length in words.
	TargetLength int `json:"target_length"`

	Phase Phase `json:"phase"`

	// Outline holds the raw planning document and its parsed chapter plans.
	Outline      string        `json:"outline,omitempty"`
	ChapterPlans []ChapterPlan `json:"chapter_plans,omitempty"`

	// ResearchNotes holds accumulated research material.
	ResearchNotes string `json:"research_notes,omitempty"`

	// ChaptersCompleted counts chapters that finished drafting.
	ChaptersCompleted int `json:"chapters_completed"`

	// TotalWords counts words across all drafted chapters.
	TotalWords int `json:"total_words"`

	// History is the refinement conversation, including tool traffic.
	History []llm.Message `json:"history,omitempty"`

	// Metadata carries free-form project annotations.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Error records why the project entered the failed phase.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChapterPlan is one planned chapter from the parsed outline.
type ChapterPlan struct {
	Number        int    `json:"number"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	StoryPosition string `json:"story_position"`
}

// Chapter is a drafted chapter record.
type Chapter struct {
	ProjectID string    `json:"project_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	WordCount int       `json:"word_count"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetChapters derives the chapter count from the word target.
// Always at least one chapter.
func (p *Project) TargetChapters() int {
	n := p.TargetLength / wordsPerChapter
	if n < 1 {
		n = 1
	}
	return n
}

// WritingComplete reports whether drafting has met the chapter count or the
// word target, whichever comes first.
func (p *Project) WritingComplete() bool {
	return p.ChaptersCompleted >= p.TargetChapters() || p.TotalWords >= p.TargetLength
}

// StoryPosition names where a chapter sits in the narrative arc. The first
// chapter is always the opening and the last the resolution; between them,
// placement runs through setup, middle, and climax by fraction of the book.
func StoryPosition(chapter, total int) string {
	if chapter <= 1 {
		return "opening"
	}
	if chapter >= total {
		return "resolution"
	}
	frac := float64(chapter) / float64(total)
	switch {
	case frac <= 0.25:
		return "setup"
	case frac <= 0.75:
		return "middle"
	default:
		return "climax"
	}
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Summary is a lightweight listing view of a project.
type Summary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Genre             string    `json:"genre"`
	Phase             Phase     `json:"phase"`
	TargetLength      int       `json:"target_length"`
	ChaptersCompleted int       `json:"chapters_completed"`
	TotalWords        int       `json:"total_words"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Progress describes how far along a project is.
type Progress struct {
	Phase             Phase   `json:"phase"`
	Percent           float64 `json:"percent"`
	TargetChapters    int     `json:"target_chapters"`
	ChaptersCompleted int     `json:"chapters_completed"`
	TotalWords        int     `json:"total_words"`
	TargetLength      int     `json:"target_length"`
	Error             string  `json:"error,omitempty"`
}
