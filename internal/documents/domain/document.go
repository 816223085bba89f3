// Package domain holds the document aggregate: versions, view tracking,
// engagement, share links and signatures.
package domain

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVersionNotFound = errors.New("document version not found")
	ErrSignerNotFound  = errors.New("signer has no pending signature")
	ErrNoSigners       = errors.New("at least one signer is required")
)

type Category string

const (
	CategoryProposal     Category = "proposal"
	CategoryContract     Category = "contract"
	CategoryPresentation Category = "presentation"
	CategoryBrochure     Category = "brochure"
	CategoryCaseStudy    Category = "case-study"
	CategoryInvoice      Category = "invoice"
	CategoryOther        Category = "other"
)

type Status string

const (
	StatusDraft            Status = "draft"
	StatusSent             Status = "sent"
	StatusViewed           Status = "viewed"
	StatusPendingSignature Status = "pending-signature"
	StatusSigned           Status = "signed"
	StatusExpired          Status = "expired"
	StatusArchived         Status = "archived"
)

// FileInfo describes a stored file.
type FileInfo struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
	Checksum string `json:"checksum,omitempty"`
}

type Version struct {
	VersionNumber int `json:"versionNumber"`
	FileInfo
	ChangeNotes string     `json:"changeNotes,omitempty"`
	UploadedBy  *uuid.UUID `json:"uploadedBy,omitempty"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	IsActive    bool       `json:"isActive"`
}

type View struct {
	ViewerID      *uuid.UUID `json:"viewerId,omitempty"`
	ViewerEmail   string     `json:"viewerEmail,omitempty"`
	ViewerName    string     `json:"viewerName,omitempty"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	FirstViewedAt time.Time  `json:"firstViewedAt"`
	LastViewedAt  time.Time  `json:"lastViewedAt"`
	Sessions      int        `json:"sessions"`
	ViewTime      int        `json:"viewTime"`
	PagesViewed   []int      `json:"pagesViewed"`
	Downloaded    bool       `json:"downloaded"`
	DownloadedAt  *time.Time `json:"downloadedAt,omitempty"`
	IPAddress     string     `json:"ipAddress,omitempty"`
	UserAgent     string     `json:"userAgent,omitempty"`
}

type HotSpot struct {
	Page         int     `json:"page"`
	Views        int     `json:"views"`
	AvgTimeSpent float64 `json:"avgTimeSpent"`
}

// Engagement holds the running engagement figures. OpenRate is a percentage,
// CompletionRate a 0..1 fraction.
type Engagement struct {
	SentCount      int       `json:"sentCount"`
	OpenRate       float64   `json:"openRate"`
	CompletionRate float64   `json:"completionRate"`
	HotSpots       []HotSpot `json:"hotSpots"`
}

type Document struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenantId"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	ProjectID   *uuid.UUID `json:"projectId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    Category   `json:"category"`
	Status      Status     `json:"status"`

	FileInfo
	CurrentVersion int       `json:"currentVersion"`
	Versions       []Version `json:"versions"`

	Views            []View     `json:"views"`
	ViewCount        int        `json:"viewCount"`
	UniqueViewers    int        `json:"uniqueViewers"`
	TotalViewTime    int        `json:"totalViewTime"`
	AvgViewTime      float64    `json:"avgViewTime"`
	DownloadCount    int        `json:"downloadCount"`
	LastViewedAt     *time.Time `json:"lastViewedAt,omitempty"`
	LastDownloadedAt *time.Time `json:"lastDownloadedAt,omitempty"`
	TotalPages       int        `json:"totalPages"`

	Engagement Engagement  `json:"engagement"`
	Signatures []Signature `json:"signatures"`

	CreatedBy *uuid.UUID `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Version   int        `json:"version"`
}

// NewDocumentInput carries the caller supplied metadata for an upload.
type NewDocumentInput struct {
	TenantID    uuid.UUID
	LeadID      *uuid.UUID
	ProjectID   *uuid.UUID
	Title       string
	Description string
	Category    Category
	TotalPages  int
	File        FileInfo
	UploadedBy  *uuid.UUID
}

// NewDocument builds a draft document whose first version is active.
func NewDocument(in NewDocumentInput, now time.Time) Document {
	category := in.Category
	if category == "" {
		category = CategoryOther
	}
	d := Document{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		LeadID:      in.LeadID,
		ProjectID:   in.ProjectID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		Status:      StatusDraft,
		TotalPages:  in.TotalPages,
		Views:       []View{},
		Signatures:  []Signature{},
		Engagement:  Engagement{HotSpots: []HotSpot{}},
		CreatedBy:   in.UploadedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	d.AddVersion(in.File, "initial upload", in.UploadedBy, now)
	return d
}

// AddVersion appends a version and makes it the only active one.
func (d *Document) AddVersion(file FileInfo, notes string, uploadedBy *uuid.UUID, now time.Time) Version {
	v := Version{
		VersionNumber: d.nextVersionNumber(),
		FileInfo:      file,
		ChangeNotes:   strings.TrimSpace(notes),
		UploadedBy:    uploadedBy,
		UploadedAt:    now,
	}
	d.Versions = append(d.Versions, v)
	d.activate(len(d.Versions) - 1)
	return d.Versions[len(d.Versions)-1]
}

// RollbackToVersion makes an existing version the only active one.
func (d *Document) RollbackToVersion(number int) error {
	for i := range d.Versions {
		if d.Versions[i].VersionNumber == number {
			d.activate(i)
			return nil
		}
	}
	return ErrVersionNotFound
}

func (d *Document) activate(idx int) {
	for i := range d.Versions {
		d.Versions[i].IsActive = i == idx
	}
	active := d.Versions[idx]
	d.CurrentVersion = active.VersionNumber
	d.FileInfo = active.FileInfo
}

func (d *Document) nextVersionNumber() int {
	highest := 0
	for _, v := range d.Versions {
		highest = max(highest, v.VersionNumber)
	}
	return highest + 1
}

// ActiveVersion returns the version flagged active.
func (d *Document) ActiveVersion() (Version, bool) {
	for _, v := range d.Versions {
		if v.IsActive {
			return v, true
		}
	}
	return Version{}, false
}

// MarkSent records one more send. Drafts move to sent.
func (d *Document) MarkSent() {
	d.Engagement.SentCount++
	if d.Status == StatusDraft {
		d.Status = StatusSent
	}
	d.refreshOpenRate()
}

func (d *Document) refreshOpenRate() {
	if d.Engagement.SentCount > 0 {
		d.Engagement.OpenRate = float64(d.UniqueViewers) / float64(d.Engagement.SentCount) * 100
	}
}

// EngagementScore combines open rate, completion and view time into 0..100.
// It is 0 until the document has been sent.
func (d *Document) EngagementScore() int {
	if d.Engagement.SentCount == 0 {
		return 0
	}
	openScore := float64(d.UniqueViewers) / float64(d.Engagement.SentCount) * 40
	completionScore := d.Engagement.CompletionRate * 30
	timeScore := math.Min(30, d.AvgViewTime/60*3)
	return int(math.Round(openScore + completionScore + timeScore))
}
