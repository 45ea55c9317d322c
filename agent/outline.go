package agent

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/c360studio/bookwright/book"
)

// ParseOutline extracts per-chapter plans from a free-form outline. A line
// that mentions "chapter" and contains a digit starts a new chapter; following
// non-empty lines accumulate into its summary. If the outline yields fewer
// chapters than targetChapters, placeholder plans pad out the remainder so
// drafting always has a full plan to work from.
func ParseOutline(outline string, targetChapters int) []book.ChapterPlan {
	var plans []book.ChapterPlan

	for _, raw := range strings.Split(outline, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if isChapterHeading(line) {
			number := firstNumber(line)
			if number == 0 {
				number = len(plans) + 1
			}
			plans = append(plans, book.ChapterPlan{
				Number: number,
				Title:  line,
			})
			continue
		}
		if len(plans) > 0 {
			plans[len(plans)-1].Summary += line + " "
		}
	}

	for i := range plans {
		plans[i].Summary = strings.TrimSpace(plans[i].Summary)
		plans[i].StoryPosition = book.StoryPosition(plans[i].Number, targetChapters)
	}

	for len(plans) < targetChapters {
		number := len(plans) + 1
		position := book.StoryPosition(number, targetChapters)
		plans = append(plans, book.ChapterPlan{
			Number:        number,
			Title:         "Chapter " + strconv.Itoa(number),
			Summary:       "Continue the story through its " + position,
			StoryPosition: position,
		})
	}

	return plans
}

func isChapterHeading(line string) bool {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "chapter") {
		return false
	}
	return strings.ContainsFunc(line, unicode.IsDigit)
}

// firstNumber returns the first run of digits in s, or 0 if there is none.
func firstNumber(s string) int {
	start := -1
	for i, r := range s {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, _ := strconv.Atoi(s[start:i])
			return n
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(s[start:])
		return n
	}
	return 0
}
