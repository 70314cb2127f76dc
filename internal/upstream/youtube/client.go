package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mkuchak/get-youtube-transcription/internal/transcript"
)

const (
	defaultBaseURL = "https://www.youtube.com"

	playerPath    = "/youtubei/v1/player"
	timedTextPath = "/api/timedtext"

	androidVersion   = "20.10.38"
	androidUserAgent = "com.google.android.youtube/" + androidVersion + " (Linux; U; Android 11) gzip"

	maxResponseBytes = 3 * 1024 * 1024
)

// poTokenMarker appears in caption URLs that require a browser-issued
// PoToken and cannot be fetched server-side.
const poTokenMarker = "&exp=xpe"

var inlineTagRE = regexp.MustCompile(`<[^>]+>`)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

// Client talks to the YouTube Innertube API: the ANDROID /player
// endpoint for caption track listings and the timedtext endpoint for
// the caption payloads themselves.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   ObserverFunc
}

// Error is a transport-level upstream failure not tied to a specific
// video's transcript availability.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithBaseURL overrides the YouTube origin, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func New(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{baseURL: defaultBaseURL, httpClient: httpClient}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithProxy returns a derived client whose requests route through the
// given proxy. The underlying transport is cloned, never mutated, so
// the base client stays proxy-free for other requests.
func (c *Client) WithProxy(proxy *url.URL) *Client {
	if proxy == nil {
		return c
	}
	base := c.httpClient.Transport
	var tr *http.Transport
	if t, ok := base.(*http.Transport); ok {
		tr = t.Clone()
	} else {
		tr = http.DefaultTransport.(*http.Transport).Clone()
	}
	tr.Proxy = http.ProxyURL(proxy)

	proxied := *c.httpClient
	proxied.Transport = tr
	return &Client{baseURL: c.baseURL, httpClient: &proxied, observer: c.observer}
}

// ListTracks fetches the caption track listing for a video. A playable
// video with no captions section means captions are disabled entirely,
// which is terminal for the caller.
func (c *Client) ListTracks(ctx context.Context, videoID string) (transcript.Listing, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("player", statusCode, time.Since(started)) }()

	payload, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: clientContext{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     androidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return transcript.Listing{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+playerPath+"?prettyPrint=false", bytes.NewReader(payload))
	if err != nil {
		return transcript.Listing{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", androidVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transcript.Listing{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transcript.Listing{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return transcript.Listing{}, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}

	var player playerResponse
	if err := json.Unmarshal(body, &player); err != nil {
		return transcript.Listing{}, fmt.Errorf("invalid player response: %w", err)
	}

	if player.Captions == nil {
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Status != "OK" {
			reason := player.PlayabilityStatus.Reason
			if reason == "" {
				reason = player.PlayabilityStatus.Status
			}
			return transcript.Listing{}, fmt.Errorf("video not playable: %s", reason)
		}
		return transcript.Listing{}, transcript.ErrTranscriptsDisabled
	}

	raw := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(raw) == 0 {
		return transcript.Listing{}, transcript.ErrTranscriptsDisabled
	}

	listing := transcript.Listing{VideoID: videoID, Tracks: make([]transcript.Track, 0, len(raw))}
	for _, t := range raw {
		listing.Tracks = append(listing.Tracks, transcript.Track{
			LanguageCode:     t.LanguageCode,
			Language:         t.Name.SimpleText,
			IsGenerated:      t.Kind == "asr",
			IsTranslatable:   t.IsTranslatable,
			CanFetchDirectly: !strings.Contains(t.BaseURL, poTokenMarker),
			BaseURL:          t.BaseURL,
		})
	}
	return listing, nil
}

// FetchTrack downloads one caption track in its own language.
func (c *Client) FetchTrack(ctx context.Context, track transcript.Track, preserveFormatting bool) ([]transcript.Segment, error) {
	if !track.CanFetchDirectly {
		return nil, fmt.Errorf("track %q requires a browser-issued PoToken", track.LanguageCode)
	}
	return c.fetchTimedText(ctx, track.BaseURL, preserveFormatting)
}

// TranslateTrack downloads a track translated into targetLanguage using
// the timedtext tlang parameter.
func (c *Client) TranslateTrack(ctx context.Context, track transcript.Track, targetLanguage string, preserveFormatting bool) ([]transcript.Segment, error) {
	if !track.IsTranslatable {
		return nil, transcript.ErrNotTranslatable
	}
	if !track.CanFetchDirectly {
		return nil, fmt.Errorf("track %q requires a browser-issued PoToken", track.LanguageCode)
	}
	u, err := url.Parse(track.BaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("tlang", targetLanguage)
	u.RawQuery = q.Encode()
	return c.fetchTimedText(ctx, u.String(), preserveFormatting)
}

// FetchDirect requests a caption track by language without a prior
// listing. It is the only primitive that works when the player metadata
// itself is blocked; YouTube returns an empty body when no such track
// exists.
func (c *Client) FetchDirect(ctx context.Context, videoID, language string, preserveFormatting bool) ([]transcript.Segment, error) {
	u, err := url.Parse(c.baseURL + timedTextPath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("v", videoID)
	q.Set("lang", language)
	u.RawQuery = q.Encode()
	return c.fetchTimedText(ctx, u.String(), preserveFormatting)
}

func (c *Client) fetchTimedText(ctx context.Context, rawURL string, preserveFormatting bool) ([]transcript.Segment, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("timedtext", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty timedtext response")
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid timedtext XML: %w", err)
	}

	segments := make([]transcript.Segment, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		text := cleanSegmentText(line.Text, preserveFormatting)
		if text == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			Text:     text,
			Start:    line.Start,
			Duration: line.Duration,
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("timedtext response contains no segments")
	}
	return segments, nil
}

// cleanSegmentText unescapes HTML entities and, unless formatting is
// preserved, strips inline markup like <i> and <b>.
func cleanSegmentText(text string, preserveFormatting bool) string {
	text = html.UnescapeString(text)
	if !preserveFormatting {
		text = inlineTagRE.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
