package models

import "time"

type Item struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Available   bool      `yaml:"available" json:"available"`
	OwnerID     int64     `yaml:"owner_id" json:"owner_id"`
	RequestID   *int64    `yaml:"request_id" json:"request_id,omitempty"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}

// Comment is feedback left on an item by someone who has borrowed it.
type Comment struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ItemView is an item as shown to a caller: comments always, last/next only to the owner.
type ItemView struct {
	Item
	LastNext
	Comments []*Comment `json:"comments"`
}
