package entries

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dayKeyLayout = "2006-01-02"

// ListForMonth returns the user's entries within the given calendar month,
// oldest first. Month is 0-indexed (0 = January) to match the client API.
func (s *Service) ListForMonth(ctx context.Context, userID string, month, year int) ([]EntryView, error) {
	if month < 0 || month > 11 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMonth, month)
	}

	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)

	return s.listEntries(ctx, opListForMonth, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where("listen_date >= ? AND listen_date <= ?", start, end)
	})
}

// ListAll returns every entry the user has logged, oldest first.
func (s *Service) ListAll(ctx context.Context, userID string) ([]EntryView, error) {
	return s.listEntries(ctx, opListAll, userID, nil)
}

// ListByDate returns the user's entries whose listen date equals the start
// of the given calendar day.
func (s *Service) ListByDate(ctx context.Context, userID string, date time.Time) ([]EntryView, error) {
	day := date.UTC()
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	return s.listEntries(ctx, opListByDate, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where("listen_date = ?", startOfDay)
	})
}

func (s *Service) listEntries(ctx context.Context, operation, userID string, scope func(*gorm.DB) *gorm.DB) ([]EntryView, error) {
	if userID == "" {
		return nil, newServiceError(operation, "missing_user_id", errMissingUserID)
	}

	query := s.db.WithContext(ctx).
		Preload("Album").
		Where("user_id = ?", userID).
		Order("listen_date ASC")
	if scope != nil {
		query = scope(query)
	}

	var rows []CalendarEntry
	if err := query.Find(&rows).Error; err != nil {
		s.logError(operation, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(operation, "query_failed", err)
	}

	views := make([]EntryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, EntryView{
			ID:              row.ID,
			ListenDate:      row.ListenDate,
			Rating:          row.Rating,
			Notes:           row.Notes,
			FavoriteTrackID: row.FavoriteTrackID,
			CreatedAt:       row.CreatedAt,
			Album:           albumView(row.Album),
		})
	}
	return views, nil
}

// BuildDayIndex reduces entries to a date-keyed mapping for the calendar
// grid. Entries without a resolvable album are skipped; when several entries
// share a day the last one in ascending order wins.
func BuildDayIndex(views []EntryView) map[string]DaySummary {
	index := make(map[string]DaySummary, len(views))
	for _, view := range views {
		if view.Album == nil {
			continue
		}
		key := view.ListenDate.UTC().Format(dayKeyLayout)
		index[key] = DaySummary{
			AlbumView:       *view.Album,
			Rating:          view.Rating,
			Notes:           view.Notes,
			ListenDate:      view.ListenDate,
			FavoriteTrackID: view.FavoriteTrackID,
		}
	}
	return index
}

// ListTracks returns the stored track list for an album ordered by track
// number, with artist names deserialized.
func (s *Service) ListTracks(ctx context.Context, albumID string) ([]TrackView, error) {
	var rows []Track
	if err := s.db.WithContext(ctx).
		Where("album_id = ?", albumID).
		Order("track_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]TrackView, 0, len(rows))
	for _, row := range rows {
		views = append(views, TrackView{
			ID:          row.ID,
			Name:        row.Name,
			TrackNumber: row.TrackNumber,
			DurationMS:  row.DurationMS,
			Explicit:    row.Explicit,
			PreviewURL:  row.PreviewURL,
			SpotifyURL:  row.SpotifyURL,
			Artists:     decodeStringList(row.Artists),
		})
	}
	return views, nil
}
