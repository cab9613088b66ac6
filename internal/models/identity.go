package models

import "time"

// Identity is a registered person. ID is dense and positional: the n-th
// registration gets ID n.
type Identity struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Vector       []float32 `json:"-" db:"vector"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}
