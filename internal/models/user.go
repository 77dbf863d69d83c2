package models

import "time"

type User struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Email     string    `yaml:"email" json:"email"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// ItemRequest is a user's public ask for an item nobody has listed yet.
type ItemRequest struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	RequestorID int64     `json:"requestor_id"`
	CreatedAt   time.Time `json:"created"`
	Items       []*Item   `json:"items"`
}
