package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		analyses   [2]string
		increments [2]int
	}{
		{
			name:       "Well formed",
			raw:        sampleEvaluation,
			analyses:   [2]string{"Clean two-pointer solution.", "Brute force, times out on large input."},
			increments: [2]int{20, 5},
		},
		{
			name:       "Only user 1 increment",
			raw:        "User 1 Rating Increment: 25",
			increments: [2]int{25, 0},
		},
		{
			name: "Markdown emphasis",
			raw: "**User 1 Analysis:** Good use of a hash map.\n**User 1 Rating Increment:** 25\n\n" +
				"**User 2 Analysis:** Off by one.\n**User 2 Rating Increment:** 10",
			analyses:   [2]string{"Good use of a hash map.", "Off by one."},
			increments: [2]int{25, 10},
		},
		{
			name: "No markers at all",
			raw:  "I'm sorry, I can't evaluate this code.",
		},
		{
			name:     "Non numeric increments",
			raw:      "User 1 Analysis: ok\nUser 1 Rating Increment: twenty\nUser 2 Rating Increment: N/A",
			analyses: [2]string{"ok", ""},
		},
		{
			name: "Extra prose and units",
			raw: "Here is my evaluation of both submissions.\n\n" +
				"User 1 Analysis: Correct.\nUser 1 Rating Increment: 12 points\n" +
				"User 2 Analysis: Partially correct.\nUser 2 Rating Increment: +7/30\n\nThanks!",
			analyses:   [2]string{"Correct.", "Partially correct."},
			increments: [2]int{12, 7},
		},
		{
			name:       "Lowercase and extra spacing",
			raw:        "user 2   rating   increment :  3\nuser2 analysis: terse",
			analyses:   [2]string{"", "terse"},
			increments: [2]int{0, 3},
		},
		{
			name:       "First occurrence wins",
			raw:        "User 1 Rating Increment: 4\nUser 1 Rating Increment: 30",
			increments: [2]int{4, 0},
		},
		{
			name:       "Negative and overflowing values",
			raw:        "User 1 Rating Increment: -3\nUser 2 Rating Increment: 99999999999999999999999",
			increments: [2]int{-3, 0},
		},
		{
			name: "Empty",
			raw:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseEvaluation(tt.raw)
			assert.Equal(t, tt.analyses, parsed.Analyses)
			assert.Equal(t, tt.increments, parsed.Increments)
		})
	}
}
