// Package models contains the data types shared by the server and the client.
package models

import "time"

// FileInfo describes one entry of a directory listing.
type FileInfo struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	Type        string    `json:"type,omitempty"` // MIME type, files only
}

// CacheEntry is the cached text content of one file.
type CacheEntry struct {
	Path      string    `json:"path"`
	Content   string    `json:"-"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetchedAt"`
}
