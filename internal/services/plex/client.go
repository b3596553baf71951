package plex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

const pageSize = 200

// Client reads the authoritative library inventory from a Plex server.
type Client struct {
	baseURL string
	token   string
	guard   *services.Guard
	mapPath func(string) string
}

// NewClient builds a Plex client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Plex.URL, "/"),
		token:   cfg.Plex.Token,
		guard: services.NewGuard("plex", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
		mapPath: cfg.MapPath,
	}
}

// Section is one Plex library section.
type Section struct {
	Key   string
	Title string
	Type  string
}

// Item is one title with its files as Plex reports them.
type Item struct {
	RatingKey string
	Title     string
	Year      int
	Type      string
	TMDBID    int64
	TVDBID    int64
	IMDBID    string
	Genres    []string
	Files     []File
}

// File is one physical media part.
type File struct {
	Path              string
	SizeBytes         int64
	Container         string
	VideoCodec        string
	Resolution        string
	DurationSeconds   float64
	Bitrate           int64
	HDR               bool
	AudioLanguages    []string
	SubtitleLanguages []string
}

// CollectionEntry is one Plex collection with member rating keys.
type CollectionEntry struct {
	RatingKey string
	Title     string
	Members   []string
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Plex-Token": c.token}
}

// TestConnection probes server identity.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		MediaContainer struct {
			Version string `json:"version"`
		} `json:"MediaContainer"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/identity", c.headers(), &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	return services.ConnectionStatus{Success: true, Message: "plex " + payload.MediaContainer.Version}
}

// Sections lists movie and show library sections.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var payload struct {
		MediaContainer struct {
			Directory []struct {
				Key   string `json:"key"`
				Title string `json:"title"`
				Type  string `json:"type"`
			} `json:"Directory"`
		} `json:"MediaContainer"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/library/sections", c.headers(), &payload); err != nil {
		return nil, err
	}
	var sections []Section
	for _, dir := range payload.MediaContainer.Directory {
		if dir.Type != "movie" && dir.Type != "show" {
			continue
		}
		sections = append(sections, Section{Key: dir.Key, Title: dir.Title, Type: dir.Type})
	}
	return sections, nil
}

type metadataContainer struct {
	MediaContainer struct {
		Size      int            `json:"size"`
		TotalSize int            `json:"totalSize"`
		Metadata  []itemMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type itemMetadata struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	Type      string `json:"type"`
	Guid      []struct {
		ID string `json:"id"`
	} `json:"Guid"`
	Genre []struct {
		Tag string `json:"tag"`
	} `json:"Genre"`
	Media []struct {
		VideoResolution string  `json:"videoResolution"`
		VideoCodec      string  `json:"videoCodec"`
		Container       string  `json:"container"`
		Bitrate         int64   `json:"bitrate"`
		Duration        float64 `json:"duration"`
		Part            []struct {
			File   string `json:"file"`
			Size   int64  `json:"size"`
			Stream []struct {
				StreamType   int    `json:"streamType"`
				LanguageTag  string `json:"languageTag"`
				LanguageCode string `json:"languageCode"`
				ColorTrc     string `json:"colorTrc"`
			} `json:"Stream"`
		} `json:"Part"`
	} `json:"Media"`
}

// Items pages through every item of a section.
func (c *Client) Items(ctx context.Context, sectionKey string) ([]Item, error) {
	var items []Item
	start := 0
	for {
		endpoint := fmt.Sprintf(
			"%s/library/sections/%s/all?includeGuids=1&X-Plex-Container-Start=%d&X-Plex-Container-Size=%d",
			c.baseURL, url.PathEscape(sectionKey), start, pageSize,
		)
		var payload metadataContainer
		if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &payload); err != nil {
			return nil, err
		}
		for _, meta := range payload.MediaContainer.Metadata {
			items = append(items, c.convertItem(meta))
		}
		start += payload.MediaContainer.Size
		if payload.MediaContainer.Size == 0 || start >= payload.MediaContainer.TotalSize {
			break
		}
	}
	return items, nil
}

// ItemDetail fetches one item with full stream information.
func (c *Client) ItemDetail(ctx context.Context, ratingKey string) (*Item, error) {
	endpoint := fmt.Sprintf("%s/library/metadata/%s?includeGuids=1", c.baseURL, url.PathEscape(ratingKey))
	var payload metadataContainer
	if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &payload); err != nil {
		return nil, err
	}
	if len(payload.MediaContainer.Metadata) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "plex", "item detail", "rating key "+ratingKey, nil)
	}
	item := c.convertItem(payload.MediaContainer.Metadata[0])
	return &item, nil
}

// Collections lists collections of a section with member rating keys.
func (c *Client) Collections(ctx context.Context, sectionKey string) ([]CollectionEntry, error) {
	endpoint := fmt.Sprintf("%s/library/sections/%s/collections", c.baseURL, url.PathEscape(sectionKey))
	var payload metadataContainer
	if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &payload); err != nil {
		return nil, err
	}

	var collections []CollectionEntry
	for _, meta := range payload.MediaContainer.Metadata {
		entry := CollectionEntry{RatingKey: meta.RatingKey, Title: meta.Title}
		childEndpoint := fmt.Sprintf("%s/library/metadata/%s/children", c.baseURL, url.PathEscape(meta.RatingKey))
		var children metadataContainer
		if err := c.guard.GetJSON(ctx, childEndpoint, c.headers(), &children); err != nil {
			return nil, err
		}
		for _, child := range children.MediaContainer.Metadata {
			entry.Members = append(entry.Members, child.RatingKey)
		}
		collections = append(collections, entry)
	}
	return collections, nil
}

func (c *Client) convertItem(meta itemMetadata) Item {
	item := Item{
		RatingKey: meta.RatingKey,
		Title:     meta.Title,
		Year:      meta.Year,
		Type:      meta.Type,
	}
	for _, guid := range meta.Guid {
		switch {
		case strings.HasPrefix(guid.ID, "tmdb://"):
			item.TMDBID, _ = strconv.ParseInt(strings.TrimPrefix(guid.ID, "tmdb://"), 10, 64)
		case strings.HasPrefix(guid.ID, "tvdb://"):
			item.TVDBID, _ = strconv.ParseInt(strings.TrimPrefix(guid.ID, "tvdb://"), 10, 64)
		case strings.HasPrefix(guid.ID, "imdb://"):
			item.IMDBID = strings.TrimPrefix(guid.ID, "imdb://")
		}
	}
	for _, genre := range meta.Genre {
		if genre.Tag != "" {
			item.Genres = append(item.Genres, genre.Tag)
		}
	}
	for _, media := range meta.Media {
		for _, part := range media.Part {
			file := File{
				Path:            c.mapPath(part.File),
				SizeBytes:       part.Size,
				Container:       media.Container,
				VideoCodec:      media.VideoCodec,
				Resolution:      media.VideoResolution,
				DurationSeconds: media.Duration / 1000,
				Bitrate:         media.Bitrate,
			}
			for _, stream := range part.Stream {
				lang := stream.LanguageTag
				if lang == "" {
					lang = stream.LanguageCode
				}
				switch stream.StreamType {
				case 1:
					if stream.ColorTrc == "smpte2084" || stream.ColorTrc == "arib-std-b67" {
						file.HDR = true
					}
				case 2:
					if lang != "" {
						file.AudioLanguages = append(file.AudioLanguages, lang)
					}
				case 3:
					if lang != "" {
						file.SubtitleLanguages = append(file.SubtitleLanguages, lang)
					}
				}
			}
			item.Files = append(item.Files, file)
		}
	}
	return item
}
