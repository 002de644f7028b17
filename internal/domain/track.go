package domain

// Track is a catalog entry. Immutable once published; rooms reference it by
// id only.
type Track struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Artist      string `db:"artist"`
	URL         string `db:"url"`
	DurationSec int    `db:"duration_sec"`
	Attribution string `db:"attribution"`
	IsPublic    bool   `db:"is_public"`
}
