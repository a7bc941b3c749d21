// Package youtube lists videos published by a single YouTube channel using
// the YouTube Data API v3. It is a plain net/http + encoding/json client, in
// the same style as the teacher's Ollama embeddings provider — no generated
// SDK, no additional dependency.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chaffee-dev/chaffee-ingest/internal/ingerr"
	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource"
)

// DefaultAPIBase is the production YouTube Data API v3 host. Tests override
// it via WithBaseURL to point at an httptest server.
const DefaultAPIBase = "https://www.googleapis.com/youtube/v3"

// Compile-time assertion that Lister implements videosource.Lister.
var _ videosource.Lister = (*Lister)(nil)

// Lister enumerates the uploads of a single YouTube channel, newest first.
// Channel may be a channel ID (UC...), a handle (@name), or a channel URL of
// the /channel/<id> or /@<handle> form; resolveChannel resolves it to the
// uploads-playlist ID on the first call.
type Lister struct {
	apiKey     string
	channel    string
	apiBase    string
	httpClient *http.Client

	uploadsPlaylistID string
	channelTitle      string
	channelURL        string
}

// Option configures a Lister.
type Option func(*Lister)

// WithHTTPClient overrides the default http.Client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(l *Lister) { l.httpClient = c }
}

// WithBaseURL overrides DefaultAPIBase, for tests.
func WithBaseURL(base string) Option {
	return func(l *Lister) { l.apiBase = base }
}

// New constructs a Lister for the given channel identifier (ID, @handle, or
// URL) using apiKey to authenticate against the YouTube Data API v3.
func New(apiKey, channel string, opts ...Option) (*Lister, error) {
	if apiKey == "" {
		return nil, ingerr.NewConfigError("source.api_key", fmt.Errorf("required for youtube source"))
	}
	if channel == "" {
		return nil, ingerr.NewConfigError("source.channel", fmt.Errorf("required for youtube source"))
	}
	l := &Lister{
		apiKey:     apiKey,
		channel:    channel,
		apiBase:    DefaultAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// List implements videosource.Lister. It resolves the channel's uploads
// playlist on first use, then pages through playlistItems and hydrates each
// entry with statistics and duration via a batched videos.list call.
func (l *Lister) List(ctx context.Context, limit int) ([]types.VideoReference, error) {
	if l.uploadsPlaylistID == "" {
		if err := l.resolveChannel(ctx); err != nil {
			return nil, err
		}
	}

	var ids []string
	pageToken := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, next, err := l.listPlaylistPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		ids = append(ids, items...)
		if limit > 0 && len(ids) >= limit {
			ids = ids[:limit]
			break
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	refs, err := l.hydrateVideos(ctx, ids)
	if err != nil {
		return nil, err
	}
	return refs, nil
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// resolveChannel looks up the channel's uploads playlist ID. A channel URL
// is first reduced to its path after "youtube.com/" (dropping a leading
// "channel/"). Input starting with '@' is looked up with forHandle; any
// other input is looked up as a channel ID with id=, with no fallback.
func (l *Lister) resolveChannel(ctx context.Context) error {
	q := url.Values{
		"part": {"snippet,contentDetails"},
		"key":  {l.apiKey},
	}
	handle := l.channel
	if i := strings.Index(handle, "youtube.com/"); i >= 0 {
		handle = strings.Trim(handle[i+len("youtube.com/"):], "/")
		handle = strings.TrimPrefix(handle, "channel/")
	}
	if len(handle) > 0 && handle[0] != '@' {
		q.Set("id", handle)
	} else {
		q.Set("forHandle", handle)
	}

	var resp channelsResponse
	if err := l.get(ctx, "/channels", q, &resp); err != nil {
		return err
	}
	if len(resp.Items) == 0 {
		return ingerr.NewAcquisitionError(false, fmt.Errorf("youtube: channel %q not found", l.channel))
	}
	item := resp.Items[0]
	l.uploadsPlaylistID = item.ContentDetails.RelatedPlaylists.Uploads
	l.channelTitle = item.Snippet.Title
	l.channelURL = "https://www.youtube.com/channel/" + item.ID
	if l.uploadsPlaylistID == "" {
		return ingerr.NewAcquisitionError(false, fmt.Errorf("youtube: channel %q has no uploads playlist", l.channel))
	}
	return nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (l *Lister) listPlaylistPage(ctx context.Context, pageToken string) (ids []string, next string, err error) {
	q := url.Values{
		"part":       {"contentDetails"},
		"playlistId": {l.uploadsPlaylistID},
		"maxResults": {"50"},
		"key":        {l.apiKey},
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp playlistItemsResponse
	if err := l.get(ctx, "/playlistItems", q, &resp); err != nil {
		return nil, "", err
	}
	for _, it := range resp.Items {
		ids = append(ids, it.ContentDetails.VideoID)
	}
	return ids, resp.NextPageToken, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string   `json:"title"`
			Description  string   `json:"description"`
			PublishedAt  string   `json:"publishedAt"`
			Tags         []string `json:"tags"`
			ChannelTitle string   `json:"channelTitle"`
			Thumbnails   struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// hydrateVideos fetches snippet/contentDetails/statistics for up to 50 video
// IDs per request (the API's batch limit) and converts them to
// VideoReference values.
func (l *Lister) hydrateVideos(ctx context.Context, ids []string) ([]types.VideoReference, error) {
	var refs []types.VideoReference
	for start := 0; start < len(ids); start += 50 {
		end := min(start+50, len(ids))
		batch := ids[start:end]

		q := url.Values{
			"part": {"snippet,contentDetails,statistics"},
			"id":   {joinComma(batch)},
			"key":  {l.apiKey},
		}
		var resp videosResponse
		if err := l.get(ctx, "/videos", q, &resp); err != nil {
			return nil, err
		}
		for _, it := range resp.Items {
			publishedAt, _ := time.Parse(time.RFC3339, it.Snippet.PublishedAt)
			refs = append(refs, types.VideoReference{
				VideoID:         it.ID,
				SourceType:      types.SourceYouTube,
				Title:           it.Snippet.Title,
				Description:     it.Snippet.Description,
				DurationSeconds: int(parseISO8601Duration(it.ContentDetails.Duration)),
				PublishedAt:     publishedAt,
				ChannelName:     it.Snippet.ChannelTitle,
				ChannelURL:      l.channelURL,
				Tags:            it.Snippet.Tags,
				ThumbnailURL:    it.Snippet.Thumbnails.High.URL,
				LikeCount:       int(parseInt(it.Statistics.LikeCount)),
				CommentCount:    int(parseInt(it.Statistics.CommentCount)),
				CanonicalURL:    "https://www.youtube.com/watch?v=" + it.ID,
			})
		}
	}
	return refs, nil
}

func (l *Lister) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.apiBase+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("youtube: build request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return ingerr.NewAcquisitionError(true, fmt.Errorf("youtube: request %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return ingerr.NewAcquisitionError(true, fmt.Errorf("youtube: %s returned HTTP %d", path, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return ingerr.NewAcquisitionError(false, fmt.Errorf("youtube: %s returned HTTP %d", path, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube: decode %s response: %w", path, err)
	}
	return nil
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// parseISO8601Duration parses an ISO-8601 duration like "PT1H2M3S" into
// total seconds. Unrecognised input returns 0 rather than erroring — a
// malformed duration field from the API should not fail the whole listing.
func parseISO8601Duration(s string) float64 {
	var h, m, sec float64
	var numBuf string
	inTime := false
	for _, r := range s {
		switch {
		case r == 'P':
			continue
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9' || r == '.':
			numBuf += string(r)
		case r == 'H' && inTime:
			h, _ = strconv.ParseFloat(numBuf, 64)
			numBuf = ""
		case r == 'M' && inTime:
			m, _ = strconv.ParseFloat(numBuf, 64)
			numBuf = ""
		case r == 'S' && inTime:
			sec, _ = strconv.ParseFloat(numBuf, 64)
			numBuf = ""
		default:
			numBuf = ""
		}
	}
	return h*3600 + m*60 + sec
}
