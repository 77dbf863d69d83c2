package models

const (
	// UserIDHeader carries the caller's user id on every API request.
	UserIDHeader = "X-Sharer-User-Id"

	// DefaultPageSize размер страницы списков по умолчанию
	DefaultPageSize = 10

	// MaxPageSize верхняя граница размера страницы
	MaxPageSize = 100

	// EventQueueSize размер буфера пересылки событий
	EventQueueSize = 256

	// RateLimitRequests количество запросов пользователя в окне
	RateLimitRequests = 120

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах
)

// Page is a plain offset/limit window over an ordered result.
type Page struct {
	From int
	Size int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.From < 0 {
		p.From = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}
