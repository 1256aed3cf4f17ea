package cache

import "time"

// Article is one cached search result. Empty strings mean the upstream
// payload did not carry the field; they are stored as NULL.
type Article struct {
	Position  int
	Headline  string
	Summary   string
	Byline    string
	ImageURL  string
	FetchedAt time.Time
}
