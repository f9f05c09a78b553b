package entries

import (
	"encoding/json"
	"time"

	"github.com/melodiary/backend/internal/users"
)

// Album caches catalog album data. Rows are shared across every user who
// logs the album; the spotify id is the deduplication key.
type Album struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name        string    `gorm:"column:name;size:512;not null"`
	Artist      string    `gorm:"column:artist;size:512;not null"`
	Artwork     string    `gorm:"column:artwork;size:512"`
	ReleaseDate string    `gorm:"column:release_date;size:32"`
	Genres      string    `gorm:"column:genres;type:text"`
	SpotifyID   *string   `gorm:"column:spotify_id;size:64;uniqueIndex"`
	SpotifyURL  string    `gorm:"column:spotify_url;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Album) TableName() string {
	return "albums"
}

// Track belongs to exactly one album and is removed with it. Track ids are
// caller supplied so the catalog id survives replacement.
type Track struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	AlbumID     string    `gorm:"column:album_id;size:190;not null;index"`
	Album       Album     `gorm:"foreignKey:AlbumID;constraint:OnDelete:CASCADE"`
	Name        string    `gorm:"column:name;size:512;not null"`
	TrackNumber int       `gorm:"column:track_number;not null"`
	DurationMS  int       `gorm:"column:duration_ms;not null"`
	Explicit    bool      `gorm:"column:explicit;not null;default:false"`
	PreviewURL  string    `gorm:"column:preview_url;size:512"`
	SpotifyURL  string    `gorm:"column:spotify_url;size:512"`
	Artists     string    `gorm:"column:artists;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Track) TableName() string {
	return "tracks"
}

// CalendarEntry records one user's listen of one album on one date. The
// favorite track pointer is cleared, not cascaded, when the track goes away.
type CalendarEntry struct {
	ID              string     `gorm:"column:id;primaryKey;size:190;not null"`
	UserID          string     `gorm:"column:user_id;size:190;not null;index:idx_entries_user_date,priority:1"`
	User            users.User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	AlbumID         string     `gorm:"column:album_id;size:190;not null"`
	Album           *Album     `gorm:"foreignKey:AlbumID;constraint:OnDelete:CASCADE"`
	ListenDate      time.Time  `gorm:"column:listen_date;not null;index:idx_entries_user_date,priority:2"`
	Rating          int        `gorm:"column:rating;not null"`
	Notes           string     `gorm:"column:notes;type:text"`
	FavoriteTrackID *string    `gorm:"column:favorite_track_id;size:190"`
	FavoriteTrack   *Track     `gorm:"foreignKey:FavoriteTrackID;constraint:OnDelete:SET NULL"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CalendarEntry) TableName() string {
	return "calendar_entries"
}

// AlbumPayload carries catalog album data supplied by the caller.
type AlbumPayload struct {
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	Artwork     string   `json:"artwork"`
	ReleaseDate string   `json:"releaseDate"`
	Genres      []string `json:"genres"`
	SpotifyID   string   `json:"spotifyId"`
	SpotifyURL  string   `json:"spotifyUrl"`
}

// TrackPayload carries catalog track data supplied by the caller. The id is
// the catalog track id and becomes the row's primary key.
type TrackPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TrackNumber int      `json:"trackNumber"`
	DurationMS  int      `json:"durationMs"`
	Explicit    bool     `json:"explicit"`
	PreviewURL  string   `json:"previewUrl"`
	SpotifyURL  string   `json:"spotifyUrl"`
	Artists     []string `json:"artists"`
}

// CreateEntryInput bundles everything the ingestion pipeline needs. Rating
// is a pointer so a legitimate zero survives presence checking.
type CreateEntryInput struct {
	Album           *AlbumPayload
	Tracks          []TrackPayload
	Rating          *int
	Notes           string
	ListenDate      time.Time
	FavoriteTrackID string
}

// AlbumView is the read-side shape of an album with genres deserialized.
type AlbumView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	Artwork     string   `json:"artwork"`
	ReleaseDate string   `json:"releaseDate"`
	Genres      []string `json:"genres"`
	SpotifyID   string   `json:"spotifyId,omitempty"`
	SpotifyURL  string   `json:"spotifyUrl,omitempty"`
}

// EntryView is one calendar entry joined with its album. A missing album
// yields a nil Album, not an error.
type EntryView struct {
	ID              string     `json:"id"`
	ListenDate      time.Time  `json:"listenDate"`
	Rating          int        `json:"rating"`
	Notes           string     `json:"notes,omitempty"`
	FavoriteTrackID *string    `json:"favoriteTrackId"`
	CreatedAt       time.Time  `json:"createdAt"`
	Album           *AlbumView `json:"album"`
}

// TrackView is the read-side shape of a stored track.
type TrackView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TrackNumber int      `json:"trackNumber"`
	DurationMS  int      `json:"durationMs"`
	Explicit    bool     `json:"explicit"`
	PreviewURL  string   `json:"previewUrl,omitempty"`
	SpotifyURL  string   `json:"spotifyUrl,omitempty"`
	Artists     []string `json:"artists"`
}

// DaySummary is the per-day merged view used by the calendar grid.
type DaySummary struct {
	AlbumView
	Rating          int       `json:"rating"`
	Notes           string    `json:"notes,omitempty"`
	ListenDate      time.Time `json:"listenDate"`
	FavoriteTrackID *string   `json:"favoriteTrackId"`
}

func encodeStringList(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeStringList(encoded string) []string {
	if encoded == "" {
		return []string{}
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return []string{}
	}
	return values
}

func albumView(album *Album) *AlbumView {
	if album == nil {
		return nil
	}
	view := &AlbumView{
		ID:          album.ID,
		Name:        album.Name,
		Artist:      album.Artist,
		Artwork:     album.Artwork,
		ReleaseDate: album.ReleaseDate,
		Genres:      decodeStringList(album.Genres),
		SpotifyURL:  album.SpotifyURL,
	}
	if album.SpotifyID != nil {
		view.SpotifyID = *album.SpotifyID
	}
	return view
}
