package entries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// RatingMin and RatingMax bound the stored rating. The integer scale is
	// -100..100, rendered client-side as -10.0..10.0.
	RatingMin = -100
	RatingMax = 100
)

var (
	// ErrInvalidInput indicates the caller supplied a malformed or incomplete
	// ingestion payload.
	ErrInvalidInput = errors.New("entries: invalid input")
	// ErrInvalidMonth indicates a month parameter outside 0..11.
	ErrInvalidMonth = errors.New("entries: month must be in 0..11")

	errMissingDatabase   = errors.New("entries: database handle is required")
	errMissingIDProvider = errors.New("entries: id provider is required")
	errMissingUserID     = errors.New("entries: user identifier is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with an operation.reason code for logging
// and diagnostics.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "entries.service.new"
	opCreateEntry  = "entries.create_entry"
	opListForMonth = "entries.list_for_month"
	opListAll      = "entries.list_all"
	opListByDate   = "entries.list_by_date"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new album and entry rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the entries service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements entry ingestion and calendar queries.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the entries service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateEntryResult bundles the created entry with its resolved album.
type CreateEntryResult struct {
	Entry EntryView
	Album AlbumView
}

// CreateEntry runs the ingestion pipeline: dedupe the album, replace its
// tracks when supplied, and record the calendar entry. The three writes
// commit or roll back as a unit.
func (s *Service) CreateEntry(ctx context.Context, userID string, input CreateEntryInput) (CreateEntryResult, error) {
	if strings.TrimSpace(userID) == "" {
		return CreateEntryResult{}, newServiceError(opCreateEntry, "missing_user_id", errMissingUserID)
	}
	if err := validateCreateInput(input); err != nil {
		return CreateEntryResult{}, err
	}

	var result CreateEntryResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		album, err := s.resolveAlbum(tx, *input.Album)
		if err != nil {
			s.logError(opCreateEntry, "album_resolution_failed", err, zap.String("user_id", userID))
			return newServiceError(opCreateEntry, "album_resolution_failed", err)
		}

		if len(input.Tracks) > 0 {
			if err := s.replaceTracks(tx, album.ID, input.Tracks); err != nil {
				s.logError(opCreateEntry, "track_replace_failed", err,
					zap.String("user_id", userID),
					zap.String("album_id", album.ID))
				return newServiceError(opCreateEntry, "track_replace_failed", err)
			}
		}

		entryID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opCreateEntry, "id_generation_failed", err)
		}
		entry := CalendarEntry{
			ID:         entryID,
			UserID:     userID,
			AlbumID:    album.ID,
			ListenDate: input.ListenDate.UTC(),
			Rating:     *input.Rating,
			Notes:      input.Notes,
		}
		if trimmed := strings.TrimSpace(input.FavoriteTrackID); trimmed != "" {
			entry.FavoriteTrackID = &trimmed
		}
		if err := tx.Create(&entry).Error; err != nil {
			s.logError(opCreateEntry, "entry_insert_failed", err,
				zap.String("user_id", userID),
				zap.String("album_id", album.ID))
			return newServiceError(opCreateEntry, "entry_insert_failed", err)
		}

		view := albumView(&album)
		result = CreateEntryResult{
			Entry: EntryView{
				ID:              entry.ID,
				ListenDate:      entry.ListenDate,
				Rating:          entry.Rating,
				Notes:           entry.Notes,
				FavoriteTrackID: entry.FavoriteTrackID,
				CreatedAt:       entry.CreatedAt,
				Album:           view,
			},
			Album: *view,
		}
		return nil
	})
	if txErr != nil {
		return CreateEntryResult{}, txErr
	}
	return result, nil
}

// resolveAlbum reuses an existing album row keyed by spotify id or inserts a
// new one. Existing rows are never refreshed from the incoming payload. The
// unique index on spotify_id arbitrates concurrent first inserts: an insert
// that loses the race falls back to the winner's row.
func (s *Service) resolveAlbum(tx *gorm.DB, payload AlbumPayload) (Album, error) {
	spotifyID := strings.TrimSpace(payload.SpotifyID)

	if spotifyID != "" {
		var existing Album
		err := tx.Where("spotify_id = ?", spotifyID).Take(&existing).Error
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Album{}, err
		}
	}

	genres, err := encodeStringList(payload.Genres)
	if err != nil {
		return Album{}, err
	}
	albumID, err := s.idProvider.NewID()
	if err != nil {
		return Album{}, err
	}

	album := Album{
		ID:          albumID,
		Name:        payload.Name,
		Artist:      payload.Artist,
		Artwork:     payload.Artwork,
		ReleaseDate: payload.ReleaseDate,
		Genres:      genres,
		SpotifyURL:  payload.SpotifyURL,
	}
	if spotifyID != "" {
		album.SpotifyID = &spotifyID
	}

	createErr := tx.Create(&album).Error
	if createErr == nil {
		return album, nil
	}
	if spotifyID != "" && isUniqueViolation(createErr) {
		var winner Album
		if err := tx.Where("spotify_id = ?", spotifyID).Take(&winner).Error; err != nil {
			return Album{}, createErr
		}
		return winner, nil
	}
	return Album{}, createErr
}

// replaceTracks swaps the album's track list for the supplied payloads.
// Always a full replacement, never a merge.
func (s *Service) replaceTracks(tx *gorm.DB, albumID string, payloads []TrackPayload) error {
	if err := tx.Where("album_id = ?", albumID).Delete(&Track{}).Error; err != nil {
		return err
	}
	for _, payload := range payloads {
		artists, err := encodeStringList(payload.Artists)
		if err != nil {
			return err
		}
		track := Track{
			ID:          payload.ID,
			AlbumID:     albumID,
			Name:        payload.Name,
			TrackNumber: payload.TrackNumber,
			DurationMS:  payload.DurationMS,
			Explicit:    payload.Explicit,
			PreviewURL:  payload.PreviewURL,
			SpotifyURL:  payload.SpotifyURL,
			Artists:     artists,
		}
		if err := tx.Create(&track).Error; err != nil {
			return err
		}
	}
	return nil
}

func validateCreateInput(input CreateEntryInput) error {
	if input.Album == nil {
		return fmt.Errorf("%w: album is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Album.Name) == "" {
		return fmt.Errorf("%w: album name is required", ErrInvalidInput)
	}
	if input.ListenDate.IsZero() {
		return fmt.Errorf("%w: listen date is required", ErrInvalidInput)
	}
	if input.Rating == nil {
		return fmt.Errorf("%w: rating is required", ErrInvalidInput)
	}
	if *input.Rating < RatingMin || *input.Rating > RatingMax {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, RatingMin, RatingMax)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("entries service error", attrs...)
}
