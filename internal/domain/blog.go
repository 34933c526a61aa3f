package domain

import "time"

type Blog struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"` // HTML
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	IsPublished bool      `json:"isPublished"`
	Views       int       `json:"views"`
	CreatedAt   time.Time `json:"createdAt"`
}

type NewsletterSubscriber struct {
	Email        string    `json:"email"`
	Source       string    `json:"source"`
	SubscribedAt time.Time `json:"subscribedAt"`
	IsActive     bool      `json:"isActive"`
}
