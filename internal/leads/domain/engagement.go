package domain

import "time"

// ActivityTouch describes an activity that was just created for the lead.
type ActivityTouch struct {
	ActivityType string
	OccurredAt   time.Time
	// DueDate is set for follow-up activities and pulls NextFollowUp forward.
	DueDate *time.Time
}

// RecordActivity applies the once-per-activity side effect of a new activity.
func (l *Lead) RecordActivity(t ActivityTouch) {
	l.TotalActivities++
	at := t.OccurredAt
	if l.LastContactDate == nil || at.After(*l.LastContactDate) {
		l.LastContactDate = &at
	}
	if t.ActivityType == "follow-up" && t.DueDate != nil {
		due := *t.DueDate
		if l.NextFollowUp == nil || l.NextFollowUp.Before(at) || due.Before(*l.NextFollowUp) {
			l.NextFollowUp = &due
		}
	}
	l.touch(at)
}

// RecordMeetingAttended counts a completed meeting.
func (l *Lead) RecordMeetingAttended(at time.Time) {
	l.Engagement.MeetingAttendance++
	l.touch(at)
}

// RecordDocumentView counts a document view; proposals also count as
// proposal views.
func (l *Lead) RecordDocumentView(isProposal bool, at time.Time) {
	l.Engagement.DocumentsViewed++
	if isProposal {
		l.Engagement.ProposalViews++
	}
	l.touch(at)
}

// EngagementDelta adds to the engagement counters tracked outside the CRM,
// such as email opens reported by the mailing tool.
type EngagementDelta struct {
	EmailOpens    int `json:"emailOpens" validate:"gte=0"`
	LinkClicks    int `json:"linkClicks" validate:"gte=0"`
	WebsiteVisits int `json:"websiteVisits" validate:"gte=0"`
}

func (d EngagementDelta) IsZero() bool {
	return d.EmailOpens == 0 && d.LinkClicks == 0 && d.WebsiteVisits == 0
}

func (l *Lead) ApplyEngagement(d EngagementDelta, at time.Time) {
	l.Engagement.EmailOpens += max(d.EmailOpens, 0)
	l.Engagement.LinkClicks += max(d.LinkClicks, 0)
	l.Engagement.WebsiteVisits += max(d.WebsiteVisits, 0)
	l.touch(at)
}

func (l *Lead) touch(at time.Time) {
	engaged := at
	l.Engagement.LastEngagedAt = &engaged
	l.Rescore()
}
