package transport

import (
	"time"

	"crm_backend/internal/documents/domain"

	"github.com/google/uuid"
)

// DocumentMeta is shared by JSON and multipart uploads.
type DocumentMeta struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Category    string     `json:"category" validate:"omitempty,oneof=proposal contract presentation brochure case-study invoice other"`
	LeadID      *uuid.UUID `json:"leadId"`
	ProjectID   *uuid.UUID `json:"projectId"`
	TotalPages  int        `json:"totalPages" validate:"min=0,max=10000"`
}

// FileRef points at a file the caller already stored.
type FileRef struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	FilePath string `json:"filePath" validate:"required,max=1024"`
	FileSize int64  `json:"fileSize" validate:"required,min=1"`
	MimeType string `json:"mimeType" validate:"required,max=255"`
	Checksum string `json:"checksum" validate:"omitempty,max=128"`
}

func (f FileRef) Info() domain.FileInfo {
	return domain.FileInfo{
		FileName: f.FileName,
		FilePath: f.FilePath,
		FileSize: f.FileSize,
		MimeType: f.MimeType,
		Checksum: f.Checksum,
	}
}

type CreateDocumentRequest struct {
	DocumentMeta
	File FileRef `json:"file" validate:"required"`
}

type AddVersionRequest struct {
	File        FileRef `json:"file" validate:"required"`
	ChangeNotes string  `json:"changeNotes" validate:"max=1000"`
}

type RollbackRequest struct {
	VersionNumber int `json:"versionNumber" validate:"required,min=1"`
}

type PageViewRequest struct {
	Page      int `json:"page" validate:"required,min=1"`
	TimeSpent int `json:"timeSpent" validate:"min=0"`
}

type TrackViewRequest struct {
	ViewerID    *uuid.UUID        `json:"viewerId"`
	ViewerEmail string            `json:"viewerEmail" validate:"omitempty,email,max=320"`
	ViewerName  string            `json:"viewerName" validate:"max=200"`
	LeadID      *uuid.UUID        `json:"leadId"`
	ViewTime    int               `json:"viewTime" validate:"min=0"`
	Pages       []PageViewRequest `json:"pages" validate:"omitempty,max=1000,dive"`
}

// ViewInput converts the request; network details come from the HTTP layer.
func (r TrackViewRequest) ViewInput(ip, userAgent string) domain.ViewInput {
	pages := make([]domain.PageView, 0, len(r.Pages))
	for _, p := range r.Pages {
		pages = append(pages, domain.PageView{Page: p.Page, TimeSpent: p.TimeSpent})
	}
	return domain.ViewInput{
		ViewerID:    r.ViewerID,
		ViewerEmail: r.ViewerEmail,
		ViewerName:  r.ViewerName,
		LeadID:      r.LeadID,
		ViewTime:    r.ViewTime,
		Pages:       pages,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
}

type TrackDownloadRequest struct {
	ViewerID    *uuid.UUID `json:"viewerId"`
	ViewerEmail string     `json:"viewerEmail" validate:"omitempty,email,max=320"`
	LeadID      *uuid.UUID `json:"leadId"`
}

type CreateShareLinkRequest struct {
	Password      string     `json:"password" validate:"omitempty,min=4,max=128"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	MaxViews      *int       `json:"maxViews" validate:"omitempty,min=1"`
	AllowDownload bool       `json:"allowDownload"`
}

type OpenShareLinkRequest struct {
	Password    string            `json:"password" validate:"max=128"`
	ViewerEmail string            `json:"viewerEmail" validate:"omitempty,email,max=320"`
	ViewerName  string            `json:"viewerName" validate:"max=200"`
	ViewTime    int               `json:"viewTime" validate:"min=0"`
	Pages       []PageViewRequest `json:"pages" validate:"omitempty,max=1000,dive"`
}

type SignerRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Name  string `json:"name" validate:"max=200"`
}

type RequestSignaturesRequest struct {
	Signers []SignerRequest `json:"signers" validate:"required,min=1,max=20,dive"`
}

type SignRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type TrendingQuery struct {
	Days  int `form:"days" validate:"min=0,max=365"`
	Limit int `form:"limit" validate:"min=0,max=100"`
}

type DocumentResponse struct {
	domain.Document
	EngagementScore int `json:"engagementScore"`
}

func NewDocumentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{Document: d, EngagementScore: d.EngagementScore()}
}

func NewDocumentResponses(docs []domain.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, NewDocumentResponse(d))
	}
	return out
}

type DownloadResponse struct {
	Document    DocumentResponse `json:"document"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

type ShareLinkResponse struct {
	domain.ShareLink
	HasPassword bool   `json:"hasPassword"`
	URL         string `json:"url"`
}

// SharedDocumentResponse is what an anonymous share-link visitor sees.
type SharedDocumentResponse struct {
	DocumentID    uuid.UUID       `json:"documentId"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Category      domain.Category `json:"category"`
	FileName      string          `json:"fileName"`
	MimeType      string          `json:"mimeType"`
	TotalPages    int             `json:"totalPages"`
	AllowDownload bool            `json:"allowDownload"`
	DownloadURL   string          `json:"downloadUrl,omitempty"`
}

type ViewerSummary struct {
	ViewerID     *uuid.UUID `json:"viewerId,omitempty"`
	ViewerEmail  string     `json:"viewerEmail,omitempty"`
	ViewerName   string     `json:"viewerName,omitempty"`
	Sessions     int        `json:"sessions"`
	ViewTime     int        `json:"viewTime"`
	PagesViewed  int        `json:"pagesViewed"`
	Downloaded   bool       `json:"downloaded"`
	LastViewedAt time.Time  `json:"lastViewedAt"`
}

type AnalyticsResponse struct {
	DocumentID      uuid.UUID        `json:"documentId"`
	Status          domain.Status    `json:"status"`
	ViewCount       int              `json:"viewCount"`
	UniqueViewers   int              `json:"uniqueViewers"`
	TotalViewTime   int              `json:"totalViewTime"`
	AvgViewTime     float64          `json:"avgViewTime"`
	DownloadCount   int              `json:"downloadCount"`
	SentCount       int              `json:"sentCount"`
	OpenRate        float64          `json:"openRate"`
	CompletionRate  float64          `json:"completionRate"`
	EngagementScore int              `json:"engagementScore"`
	HotSpots        []domain.HotSpot `json:"hotSpots"`
	Viewers         []ViewerSummary  `json:"viewers"`
}

func NewAnalyticsResponse(d domain.Document) AnalyticsResponse {
	viewers := make([]ViewerSummary, 0, len(d.Views))
	for _, v := range d.Views {
		viewers = append(viewers, ViewerSummary{
			ViewerID:     v.ViewerID,
			ViewerEmail:  v.ViewerEmail,
			ViewerName:   v.ViewerName,
			Sessions:     v.Sessions,
			ViewTime:     v.ViewTime,
			PagesViewed:  len(v.PagesViewed),
			Downloaded:   v.Downloaded,
			LastViewedAt: v.LastViewedAt,
		})
	}
	hotSpots := d.Engagement.HotSpots
	if hotSpots == nil {
		hotSpots = []domain.HotSpot{}
	}
	return AnalyticsResponse{
		DocumentID:      d.ID,
		Status:          d.Status,
		ViewCount:       d.ViewCount,
		UniqueViewers:   d.UniqueViewers,
		TotalViewTime:   d.TotalViewTime,
		AvgViewTime:     d.AvgViewTime,
		DownloadCount:   d.DownloadCount,
		SentCount:       d.Engagement.SentCount,
		OpenRate:        d.Engagement.OpenRate,
		CompletionRate:  d.Engagement.CompletionRate,
		EngagementScore: d.EngagementScore(),
		HotSpots:        hotSpots,
		Viewers:         viewers,
	}
}
