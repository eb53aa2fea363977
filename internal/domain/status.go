package domain

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusWillPlay  Status = "willplay"
	StatusPlaying   Status = "playing"
	StatusWillWatch Status = "willwatch"
	StatusWatching  Status = "watching"
	StatusWillRead  Status = "willread"
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusDropped   Status = "dropped"
)

var statusOrder = map[MediaType][]Status{
	MediaGames:  {StatusUpcoming, StatusWillPlay, StatusPlaying, StatusCompleted, StatusPaused, StatusDropped},
	MediaMovies: {StatusUpcoming, StatusWillWatch, StatusWatching, StatusCompleted, StatusPaused, StatusDropped},
	MediaBooks:  {StatusUpcoming, StatusWillRead, StatusReading, StatusCompleted, StatusPaused, StatusDropped},
}

// categoryCollections names the user-defined category list each media type
// references: platforms for games, genres for movies, authors for books.
var categoryCollections = map[MediaType]string{
	MediaGames:  "platforms",
	MediaMovies: "genres",
	MediaBooks:  "authors",
}

func MediaTypes() []MediaType {
	return []MediaType{MediaGames, MediaMovies, MediaBooks}
}

func (m MediaType) Valid() bool {
	_, ok := statusOrder[m]
	return ok
}

// Statuses returns the display order of the status lists for m.
func (m MediaType) Statuses() []Status {
	out := make([]Status, len(statusOrder[m]))
	copy(out, statusOrder[m])
	return out
}

func (m MediaType) CategoryCollection() string {
	return categoryCollections[m]
}

func (m MediaType) HasStatus(s Status) bool {
	return m.StatusRank(s) >= 0
}

// StatusRank is the index of s in the media type's status order, or -1.
func (m MediaType) StatusRank(s Status) int {
	for i, st := range statusOrder[m] {
		if st == s {
			return i
		}
	}
	return -1
}
