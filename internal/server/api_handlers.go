package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/melodiary/backend/internal/entries"
	"github.com/melodiary/backend/internal/users"
	"go.uber.org/zap"
)

func (h *httpHandler) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `query parameter "q" is required`})
		return
	}

	albums, err := h.catalog.SearchAlbums(c.Request.Context(), query, 0)
	if err != nil {
		h.logger.Error("album search failed", zap.String("query", query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search albums"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

func (h *httpHandler) handleAlbumTracks(c *gin.Context) {
	albumID := c.Param("albumId")
	if albumID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "album id is required"})
		return
	}

	album, err := h.catalog.GetAlbumDetails(c.Request.Context(), albumID)
	if err != nil {
		h.logger.Error("album lookup failed", zap.String("album_id", albumID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch album tracks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"album": album})
}

func (h *httpHandler) handleArtwork(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `query parameter "url" is required`})
		return
	}

	image, ok := h.artwork.Get(c.Request.Context(), url)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "artwork not available"})
		return
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, image.Data)
}

type createEntryPayload struct {
	Album           *entries.AlbumPayload  `json:"album"`
	Tracks          []entries.TrackPayload `json:"tracks"`
	Rating          *int                   `json:"rating"`
	Notes           string                 `json:"notes"`
	ListenDate      string                 `json:"listenDate"`
	FavoriteTrackID string                 `json:"favoriteTrackId"`
}

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payload createEntryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	listenDate, err := parseDate(payload.ListenDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields: album, listenDate, rating"})
		return
	}

	result, err := h.entries.CreateEntry(c.Request.Context(), user.ID, entries.CreateEntryInput{
		Album:           payload.Album,
		Tracks:          payload.Tracks,
		Rating:          payload.Rating,
		Notes:           payload.Notes,
		ListenDate:      listenDate,
		FavoriteTrackID: payload.FavoriteTrackID,
	})
	if err != nil {
		if errors.Is(err, entries.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("entry creation failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"entry": result.Entry,
			"album": result.Album,
		},
	})
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var (
		views []entries.EntryView
		err   error
	)
	switch {
	case c.Query("date") != "":
		var date time.Time
		date, err = parseDate(c.Query("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date parameter"})
			return
		}
		views, err = h.entries.ListByDate(c.Request.Context(), user.ID, date)
	case c.Query("month") != "" && c.Query("year") != "":
		month, year, parseErr := parseMonthYear(c.Query("month"), c.Query("year"))
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month or year parameter"})
			return
		}
		views, err = h.entries.ListForMonth(c.Request.Context(), user.ID, month, year)
	default:
		views, err = h.entries.ListAll(c.Request.Context(), user.ID)
	}
	if err != nil {
		if errors.Is(err, entries.ErrInvalidMonth) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month or year parameter"})
			return
		}
		h.logger.Error("entry listing failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": views})
}

func (h *httpHandler) handleCalendar(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	now := time.Now().UTC()
	month := int(now.Month()) - 1
	year := now.Year()
	if c.Query("month") != "" || c.Query("year") != "" {
		var err error
		month, year, err = parseMonthYear(c.Query("month"), c.Query("year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month or year parameter"})
			return
		}
	}

	views, err := h.entries.ListForMonth(c.Request.Context(), user.ID, month, year)
	if err != nil {
		if errors.Is(err, entries.ErrInvalidMonth) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month or year parameter"})
			return
		}
		h.logger.Error("calendar query failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// Warm the artwork cache off the request path; the grid will ask for
	// these URLs next.
	urls := make([]string, 0, len(views))
	for _, view := range views {
		if view.Album != nil && view.Album.Artwork != "" {
			urls = append(urls, view.Album.Artwork)
		}
	}
	if len(urls) > 0 {
		go h.artwork.Preload(context.Background(), urls)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"month":    month,
			"year":     year,
			"entries":  views,
			"albumMap": entries.BuildDayIndex(views),
		},
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": userPayload(user)})
}

type setUsernamePayload struct {
	Username string `json:"username"`
}

func (h *httpHandler) handleSetUsername(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payload setUsernamePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := h.users.SetUsername(c.Request.Context(), user.ID, payload.Username)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username is already taken"})
		case errors.Is(err, users.ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, users.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			h.logger.Error("username update failed", zap.String("user_id", user.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": userPayload(updated)})
}

func (h *httpHandler) handlePublicProfile(c *gin.Context) {
	username := c.Param("username")

	user, err := h.users.GetByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("profile lookup failed", zap.String("username", username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	views, err := h.entries.ListAll(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("profile entries failed", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	profile := gin.H{"name": user.Name, "image": user.Image}
	if user.Username != nil {
		profile["username"] = *user.Username
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"user": profile, "entries": views},
	})
}

func userPayload(user users.User) gin.H {
	payload := gin.H{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"emailVerified": user.EmailVerified,
		"image":         user.Image,
		"createdAt":     user.CreatedAt,
	}
	if user.Username != nil {
		payload["username"] = *user.Username
	}
	return payload
}

// parseDate accepts either a full RFC 3339 timestamp or a bare calendar day.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("date value required")
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}

func parseMonthYear(monthValue, yearValue string) (int, int, error) {
	month, err := strconv.Atoi(monthValue)
	if err != nil {
		return 0, 0, err
	}
	year, err := strconv.Atoi(yearValue)
	if err != nil {
		return 0, 0, err
	}
	return month, year, nil
}
