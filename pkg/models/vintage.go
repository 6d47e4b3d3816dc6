package models

import "time"

// Vintage is one year's edition of the administrative geography.
type Vintage struct {
	ID        string    `json:"id" db:"id"`
	Year      int       `json:"year" db:"year"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Provenance records the published document a fact came from.
type Provenance struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	URL       string    `json:"url" db:"url"`
	VintageID string    `json:"vintage_id" db:"vintage_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
