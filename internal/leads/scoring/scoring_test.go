package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBANTScore(t *testing.T) {
	cases := []struct {
		name string
		in   BANT
		want int
	}{
		{"all max", BANT{10, 10, 10, 10}, 100},
		{"all zero", BANT{0, 0, 0, 0}, 0},
		{"all five", BANT{5, 5, 5, 5}, 50},
		{"rounds half up", BANT{1, 0, 0, 0}, 3},
		{"clamps above range", BANT{25, 10, 10, 10}, 100},
		{"clamps below range", BANT{-4, 0, 0, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BANTScore(tc.in))
		})
	}
}

func TestBANTScoreMatchesFormulaForWholeDomain(t *testing.T) {
	for b := 0; b <= 10; b++ {
		for a := 0; a <= 10; a++ {
			for n := 0; n <= 10; n++ {
				for tl := 0; tl <= 10; tl++ {
					got := BANTScore(BANT{b, a, n, tl})
					want := int(math.Round(float64((b+a+n+tl)*100) / 40))
					if got != want || got < 0 || got > 100 {
						t.Fatalf("BANTScore(%d,%d,%d,%d) = %d, want %d", b, a, n, tl, got, want)
					}
				}
			}
		}
	}
}

func TestEngagementScore(t *testing.T) {
	t.Run("weighted sum", func(t *testing.T) {
		e := Engagement{EmailOpens: 3, LinkClicks: 2, DocumentsViewed: 1, MeetingAttendance: 1, ProposalViews: 1, WebsiteVisits: 4}
		// 3 + 4 + 3 + 5 + 4 + 4
		assert.Equal(t, 23, EngagementScore(e))
	})

	t.Run("caps at 100", func(t *testing.T) {
		assert.Equal(t, 100, EngagementScore(Engagement{MeetingAttendance: 1000}))
		assert.Equal(t, 100, EngagementScore(Engagement{EmailOpens: math.MaxInt}))
	})

	t.Run("ignores negative counters", func(t *testing.T) {
		assert.Equal(t, 2, EngagementScore(Engagement{EmailOpens: -50, LinkClicks: 1}))
	})
}

func TestLeadScoreAndPriority(t *testing.T) {
	score := LeadScore(80, 50)
	assert.Equal(t, 68, score)
	assert.Equal(t, PriorityHigh, PriorityFor(score))

	assert.Equal(t, 69, LeadScore(85, 45)) // 51 + 18
	assert.Equal(t, 100, LeadScore(100, 100))
	assert.Equal(t, 0, LeadScore(0, 0))
}

func TestPriorityTiers(t *testing.T) {
	cases := map[int]Priority{
		100: PriorityUrgent,
		80:  PriorityUrgent,
		79:  PriorityHigh,
		60:  PriorityHigh,
		59:  PriorityMedium,
		40:  PriorityMedium,
		39:  PriorityLow,
		0:   PriorityLow,
	}
	for score, want := range cases {
		assert.Equal(t, want, PriorityFor(score), "score %d", score)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	b := BANT{Budget: 8, Authority: 6, Need: 9, Timeline: 7}
	e := Engagement{EmailOpens: 4, DocumentsViewed: 2, MeetingAttendance: 1}

	first := Evaluate(b, e)
	second := Evaluate(b, e)

	assert.Equal(t, first, second)
	assert.Equal(t, 75, first.BANTScore)
	assert.Equal(t, 15, first.EngagementScore)
	assert.Equal(t, 51, first.LeadScore)
	assert.Equal(t, PriorityMedium, first.Priority)
	assert.False(t, IsHot(first.LeadScore))
}
