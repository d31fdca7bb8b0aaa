package models

import "time"

type LoginAttempt struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}
