package transcript

// Track is one caption stream YouTube reports as available for a video.
type Track struct {
	LanguageCode   string
	Language       string
	IsGenerated    bool
	IsTranslatable bool
	// CanFetchDirectly is false for tracks whose caption URL requires a
	// browser-issued PoToken and cannot be fetched server-side.
	CanFetchDirectly bool
	BaseURL          string
}

// Listing is the snapshot of tracks available for a video, fetched fresh
// per request. Order matches the upstream response.
type Listing struct {
	VideoID string
	Tracks  []Track
}

// Segment is a single timed caption line. Start and Duration are seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Result is the unit returned to the caller. OriginalLanguage is set if
// and only if Translated is true.
type Result struct {
	Segments         []Segment
	Language         string
	IsGenerated      bool
	Translated       bool
	OriginalLanguage string
}
