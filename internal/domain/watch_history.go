package domain

import "time"

// WatchPosition records how far a user got through one pronunciation clip.
type WatchPosition struct {
	VideoID   VideoID   `json:"videoId"`
	Word      string    `json:"word,omitempty"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	UpdatedAt time.Time `json:"updatedAt"`
}
