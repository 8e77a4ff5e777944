package domain

// VideoID identifies one pronunciation clip. IDs are opaque but ordered, so
// listings and eviction tie-breaks are deterministic.
type VideoID string
