package entries

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:melodiary_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Album{}, &Track{}, &CalendarEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to construct entries service: %v", err)
	}

	return service, db
}

func intPtr(value int) *int {
	return &value
}

func validAlbumPayload() *AlbumPayload {
	return &AlbumPayload{
		Name:        "In Rainbows",
		Artist:      "Radiohead",
		Artwork:     "https://img.example/in-rainbows.jpg",
		ReleaseDate: "2007-10-10",
		Genres:      []string{"art rock", "electronica"},
		SpotifyID:   "5vkqYmiPBYLaalcmjujWxK",
		SpotifyURL:  "https://open.spotify.com/album/5vkqYmiPBYLaalcmjujWxK",
	}
}

func validTrackPayloads() []TrackPayload {
	return []TrackPayload{
		{
			ID:          "track-15-step",
			Name:        "15 Step",
			TrackNumber: 1,
			DurationMS:  237_000,
			Artists:     []string{"Radiohead"},
		},
		{
			ID:          "track-bodysnatchers",
			Name:        "Bodysnatchers",
			TrackNumber: 2,
			DurationMS:  242_000,
			Artists:     []string{"Radiohead"},
		},
	}
}
