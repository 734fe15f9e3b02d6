package models

import "time"

// Document is the uploaded PDF a session currently works against.
type Document struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	Text       string    `json:"-"`
	Pages      int       `json:"pages"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}
