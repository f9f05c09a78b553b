// Catalog payload types mirror the Spotify Web API JSON shapes,
// https://developer.spotify.com/documentation/web-api/reference/
package catalog

// Image is an artwork resource in one of the catalog's rendered sizes.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist identifies a catalog artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExternalURLs carries the public web links of a catalog object.
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// Track is a catalog track, nested inside album detail responses.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	TrackNumber  int          `json:"track_number"`
	DurationMS   int          `json:"duration_ms"`
	Explicit     bool         `json:"explicit"`
	PreviewURL   string       `json:"preview_url"`
	Artists      []Artist     `json:"artists"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// TrackPage is the paginated track listing embedded in an album record.
type TrackPage struct {
	Items []Track `json:"items"`
	Total int     `json:"total"`
}

// Album is a catalog album record. Tracks is only populated on album
// detail lookups, never on search results.
type Album struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Artists      []Artist     `json:"artists"`
	Images       []Image      `json:"images"`
	ReleaseDate  string       `json:"release_date"`
	ExternalURLs ExternalURLs `json:"external_urls"`
	Genres       []string     `json:"genres"`
	AlbumType    string       `json:"album_type"`
	Tracks       *TrackPage   `json:"tracks,omitempty"`
}

// PrimaryImageURL picks the preferred artwork rendition, favoring the
// 300px size used across the UI, then the 64px thumbnail, then whatever
// the catalog listed first.
func (a Album) PrimaryImageURL() string {
	for _, image := range a.Images {
		if image.Height == 300 {
			return image.URL
		}
	}
	for _, image := range a.Images {
		if image.Height == 64 {
			return image.URL
		}
	}
	if len(a.Images) > 0 {
		return a.Images[0].URL
	}
	return ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type searchResponse struct {
	Albums struct {
		Items []Album `json:"items"`
		Total int     `json:"total"`
	} `json:"albums"`
}
