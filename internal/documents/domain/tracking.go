package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PageView struct {
	Page      int `json:"page"`
	TimeSpent int `json:"timeSpent"`
}

// ViewInput is one viewing session reported by a client.
type ViewInput struct {
	ViewerID    *uuid.UUID
	ViewerEmail string
	ViewerName  string
	LeadID      *uuid.UUID
	ViewTime    int
	Pages       []PageView
	IPAddress   string
	UserAgent   string
}

// TrackView folds a viewing session into the view list and the derived
// counters. It reports whether the viewer was seen for the first time.
//
// CompletionRate is a running average of per-session completion ratios, not
// the share of pages seen across all sessions.
func (d *Document) TrackView(in ViewInput, now time.Time) bool {
	in.ViewerEmail = strings.ToLower(strings.TrimSpace(in.ViewerEmail))
	pages := distinctPages(in.Pages)

	idx := d.findViewer(in.ViewerID, in.ViewerEmail)
	newViewer := idx < 0
	if newViewer {
		d.Views = append(d.Views, View{
			ViewerID:      in.ViewerID,
			ViewerEmail:   in.ViewerEmail,
			ViewerName:    in.ViewerName,
			LeadID:        in.LeadID,
			FirstViewedAt: now,
			PagesViewed:   []int{},
		})
		idx = len(d.Views) - 1
		d.UniqueViewers++
	}

	v := &d.Views[idx]
	v.Sessions++
	v.ViewTime += max(in.ViewTime, 0)
	v.LastViewedAt = now
	v.PagesViewed = mergePages(v.PagesViewed, pages)
	if in.ViewerName != "" {
		v.ViewerName = in.ViewerName
	}
	if v.LeadID == nil {
		v.LeadID = in.LeadID
	}
	if in.IPAddress != "" {
		v.IPAddress = in.IPAddress
	}
	if in.UserAgent != "" {
		v.UserAgent = in.UserAgent
	}

	d.ViewCount++
	d.TotalViewTime += max(in.ViewTime, 0)
	d.AvgViewTime = float64(d.TotalViewTime) / float64(d.ViewCount)
	viewed := now
	d.LastViewedAt = &viewed

	if d.TotalPages > 0 {
		ratio := min(float64(len(pages))/float64(d.TotalPages), 1)
		d.Engagement.CompletionRate = (d.Engagement.CompletionRate*float64(d.ViewCount-1) + ratio) / float64(d.ViewCount)
	}
	for _, p := range in.Pages {
		d.recordHotSpot(p)
	}
	d.refreshOpenRate()

	if d.Status == StatusSent {
		d.Status = StatusViewed
	}
	return newViewer
}

// TrackDownload counts a download and flags the matching view.
func (d *Document) TrackDownload(viewerID *uuid.UUID, viewerEmail string, now time.Time) {
	d.DownloadCount++
	at := now
	d.LastDownloadedAt = &at

	if idx := d.findViewer(viewerID, strings.ToLower(strings.TrimSpace(viewerEmail))); idx >= 0 {
		d.Views[idx].Downloaded = true
		d.Views[idx].DownloadedAt = &at
	}
}

func (d *Document) findViewer(id *uuid.UUID, email string) int {
	for i, v := range d.Views {
		if id != nil && v.ViewerID != nil && *v.ViewerID == *id {
			return i
		}
		if email != "" && v.ViewerEmail == email {
			return i
		}
	}
	return -1
}

func (d *Document) recordHotSpot(p PageView) {
	if p.Page <= 0 {
		return
	}
	spent := float64(max(p.TimeSpent, 0))
	for i := range d.Engagement.HotSpots {
		h := &d.Engagement.HotSpots[i]
		if h.Page == p.Page {
			h.Views++
			h.AvgTimeSpent += (spent - h.AvgTimeSpent) / float64(h.Views)
			return
		}
	}
	d.Engagement.HotSpots = append(d.Engagement.HotSpots, HotSpot{Page: p.Page, Views: 1, AvgTimeSpent: spent})
}

func distinctPages(views []PageView) []int {
	pages := make([]int, 0, len(views))
	for _, p := range views {
		if p.Page > 0 && !slices.Contains(pages, p.Page) {
			pages = append(pages, p.Page)
		}
	}
	return pages
}

func mergePages(existing, add []int) []int {
	for _, p := range add {
		if !slices.Contains(existing, p) {
			existing = append(existing, p)
		}
	}
	slices.Sort(existing)
	return existing
}
