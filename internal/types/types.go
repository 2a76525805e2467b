package types

import (
	"time"
)

// ContentType represents the kind of payload a history item holds
type ContentType string

const (
	TypeText  ContentType = "text"
	TypeImage ContentType = "image"
)

// Valid reports whether t is one of the persisted content types
func (t ContentType) Valid() bool {
	return t == TypeText || t == TypeImage
}

// ClipboardItem is a single persisted clipboard history entry
type ClipboardItem struct {
	ID             int64       `json:"id"`
	ContentType    ContentType `json:"content_type"`
	TextContent    string      `json:"text_content,omitempty"`
	ImageData      []byte      `json:"image_data,omitempty"`
	ImageThumbnail []byte      `json:"image_thumbnail,omitempty"`
	ContentHash    string      `json:"content_hash"`
	Preview        string      `json:"preview"`
	DeviceID       string      `json:"device_id"`
	DeviceName     string      `json:"device_name"`
	CreatedAt      int64       `json:"created_at"` // milliseconds since epoch
	IsStarred      bool        `json:"is_starred"`
}

// CreatedTime returns CreatedAt as a time.Time
func (i *ClipboardItem) CreatedTime() time.Time {
	return time.UnixMilli(i.CreatedAt)
}

// IsImage reports whether the item holds image content
func (i *ClipboardItem) IsImage() bool {
	return i.ContentType == TypeImage
}

// Page is one page of history rows together with the total match count
type Page struct {
	Items []*ClipboardItem `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// TotalPages returns the number of pages of Size rows needed for Total
func (p *Page) TotalPages() int {
	if p.Size <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.Size - 1) / p.Size
}

// ClampPage keeps page inside [0, totalPages-1]
func ClampPage(page, total, size int) int {
	if page < 0 || size <= 0 || total <= 0 {
		return 0
	}
	last := (total+size-1)/size - 1
	if page > last {
		return last
	}
	return page
}

// DeviceInfo describes a device that has written to the shared history
type DeviceInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
	Items    int       `json:"items"`
}

// HistoryStats summarizes the stored history
type HistoryStats struct {
	Total   int            `json:"total"`
	Starred int            `json:"starred"`
	Text    int            `json:"text"`
	Images  int            `json:"images"`
	Devices map[string]int `json:"devices"`
}
