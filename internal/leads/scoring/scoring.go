// Package scoring computes the derived qualification fields of a lead.
//
// Every function here is pure: the same BANT and engagement inputs always
// produce the same scores, so callers can recompute on every write.
package scoring

import "math"

const (
	// MaxBANTField is the upper bound of each BANT dimension.
	MaxBANTField = 10
	// MaxScore bounds every derived score.
	MaxScore = 100
	// HotThreshold is the lead score from which a lead counts as hot.
	HotThreshold = 70

	bantWeight       = 6 // tenths
	engagementWeight = 4 // tenths
)

// Engagement counter weights.
const (
	WeightEmailOpens        = 1
	WeightLinkClicks        = 2
	WeightDocumentsViewed   = 3
	WeightMeetingAttendance = 5
	WeightProposalViews     = 4
	WeightWebsiteVisits     = 1
)

// Priority is the tier derived from the lead score.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the four tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// BANT holds the four qualification dimensions, each expected in [0,10].
type BANT struct {
	Budget    int
	Authority int
	Need      int
	Timeline  int
}

// Engagement holds the raw interaction counters.
type Engagement struct {
	EmailOpens        int
	LinkClicks        int
	DocumentsViewed   int
	MeetingAttendance int
	ProposalViews     int
	WebsiteVisits     int
}

// Result is the full set of derived values.
type Result struct {
	BANTScore       int
	EngagementScore int
	LeadScore       int
	Priority        Priority
}

// Evaluate runs every derivation in one pass.
func Evaluate(b BANT, e Engagement) Result {
	bantScore := BANTScore(b)
	engagementScore := EngagementScore(e)
	leadScore := LeadScore(bantScore, engagementScore)
	return Result{
		BANTScore:       bantScore,
		EngagementScore: engagementScore,
		LeadScore:       leadScore,
		Priority:        PriorityFor(leadScore),
	}
}

// BANTScore is round(sum/40*100) with each field clamped to [0,10].
func BANTScore(b BANT) int {
	sum := clamp(b.Budget, 0, MaxBANTField) +
		clamp(b.Authority, 0, MaxBANTField) +
		clamp(b.Need, 0, MaxBANTField) +
		clamp(b.Timeline, 0, MaxBANTField)
	score := int(math.Round(float64(sum*100) / float64(4*MaxBANTField)))
	return clamp(score, 0, MaxScore)
}

// EngagementScore is the weighted counter sum capped at 100. Negative
// counters count as zero.
func EngagementScore(e Engagement) int {
	weighted := []struct{ count, weight int }{
		{e.EmailOpens, WeightEmailOpens},
		{e.LinkClicks, WeightLinkClicks},
		{e.DocumentsViewed, WeightDocumentsViewed},
		{e.MeetingAttendance, WeightMeetingAttendance},
		{e.ProposalViews, WeightProposalViews},
		{e.WebsiteVisits, WeightWebsiteVisits},
	}

	total := 0
	for _, w := range weighted {
		if w.count <= 0 {
			continue
		}
		// Checked per term so huge counters cannot overflow the sum.
		if w.count >= MaxScore {
			return MaxScore
		}
		total += w.count * w.weight
		if total >= MaxScore {
			return MaxScore
		}
	}
	return total
}

// LeadScore blends the two scores 60/40 and rounds half away from zero.
func LeadScore(bantScore, engagementScore int) int {
	b := clamp(bantScore, 0, MaxScore)
	e := clamp(engagementScore, 0, MaxScore)
	blended := float64(b*bantWeight+e*engagementWeight) / 10
	return clamp(int(math.Round(blended)), 0, MaxScore)
}

// PriorityFor maps a lead score onto the four tiers:
// 80+ urgent, 60+ high, 40+ medium, otherwise low.
func PriorityFor(leadScore int) Priority {
	switch {
	case leadScore >= 80:
		return PriorityUrgent
	case leadScore >= 60:
		return PriorityHigh
	case leadScore >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// IsHot reports whether a score reaches the hot-lead threshold.
func IsHot(leadScore int) bool {
	return leadScore >= HotThreshold
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
