package models

import "time"

// Session describes one client conversation with the service.
type Session struct {
	ID         string    `json:"id"`
	LastID     int64     `json:"last_id"`
	Document   *Document `json:"document,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
