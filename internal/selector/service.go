package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mkuchak/get-youtube-transcription/internal/transcript"
)

// Provider is the upstream transcript source. A proxy-scoped variant is
// derived per request through ScopeFunc and never shared across requests.
type Provider interface {
	ListTracks(ctx context.Context, videoID string) (transcript.Listing, error)
	FetchTrack(ctx context.Context, track transcript.Track, preserveFormatting bool) ([]transcript.Segment, error)
	TranslateTrack(ctx context.Context, track transcript.Track, targetLanguage string, preserveFormatting bool) ([]transcript.Segment, error)
	FetchDirect(ctx context.Context, videoID, language string, preserveFormatting bool) ([]transcript.Segment, error)
}

// ScopeFunc derives a proxy-routed variant of the provider for one
// request. A nil ScopeFunc means proxied requests use the base provider.
type ScopeFunc func(proxy *url.URL) Provider

type StrategyObserver func(strategy, outcome string)

type Input struct {
	VideoID            string
	Language           string
	Proxy              *url.URL
	PreserveFormatting bool
}

// Outcome is the tri-state result of one acquisition strategy.
type Outcome int

const (
	// OutcomeSkip means the strategy yielded nothing; try the next one.
	OutcomeSkip Outcome = iota
	// OutcomeDone means the strategy produced the final result.
	OutcomeDone
	// OutcomeAbort means a terminal condition; no further strategy runs.
	OutcomeAbort
)

type strategy struct {
	name string
	run  func(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error)
}

// Service executes the ordered transcript acquisition waterfall. The
// strategy order is observable behavior: swapping generated-original and
// manual-translated changes the result for many videos.
type Service struct {
	provider        Provider
	scope           ScopeFunc
	logger          *slog.Logger
	defaultLanguage string
	timeout         time.Duration
	observer        StrategyObserver
}

func New(provider Provider, scope ScopeFunc, logger *slog.Logger, defaultLanguage string, timeout time.Duration, observer StrategyObserver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:        provider,
		scope:           scope,
		logger:          logger,
		defaultLanguage: strings.TrimSpace(defaultLanguage),
		timeout:         timeout,
		observer:        observer,
	}
}

func (s *Service) Select(ctx context.Context, in Input) (transcript.Result, error) {
	in.Language = strings.TrimSpace(in.Language)
	if in.Language == "" {
		in.Language = s.defaultLanguage
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	provider := s.provider
	if in.Proxy != nil && s.scope != nil {
		provider = s.scope(in.Proxy)
	}

	listing, listErr := provider.ListTracks(ctx, in.VideoID)
	if errors.Is(listErr, transcript.ErrTranscriptsDisabled) {
		s.observe("list", "disabled")
		return transcript.Result{}, listErr
	}
	if listErr == nil {
		s.logger.Debug("available tracks",
			"video_id", in.VideoID,
			"tracks", describeTracks(listing.Tracks),
		)
	}

	strategies := []strategy{
		{name: "manual_requested_language", run: manualRequestedLanguage},
		{name: "generated_original_language", run: generatedOriginalLanguage},
		{name: "manual_any_language_translated", run: manualAnyLanguageTranslated},
		{name: "any_available_as_is", run: anyAvailableAsIs},
		{name: "direct_fetch", run: directFetch},
	}

	for _, st := range strategies {
		result, outcome, err := st.run(ctx, provider, in, listing, listErr)
		switch outcome {
		case OutcomeDone:
			s.observe(st.name, "hit")
			return result, nil
		case OutcomeAbort:
			s.observe(st.name, "abort")
			return transcript.Result{}, err
		default:
			s.observe(st.name, "miss")
		}
	}

	if err := ctx.Err(); err != nil {
		return transcript.Result{}, err
	}
	// Without a listing the waterfall never learned anything about this
	// video; report the transport failure rather than claiming the
	// video has no transcript.
	if listErr != nil {
		return transcript.Result{}, fmt.Errorf("track listing failed: %w", listErr)
	}
	return transcript.Result{}, transcript.ErrNoTranscriptAvailable
}

func (s *Service) observe(strategy, outcome string) {
	if s.observer != nil {
		s.observer(strategy, outcome)
	}
}

// manualRequestedLanguage fetches a human-authored track whose language
// exactly matches the requested one.
func manualRequestedLanguage(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error) {
	if listErr != nil {
		return transcript.Result{}, OutcomeSkip, nil
	}
	for _, track := range listing.Tracks {
		if track.IsGenerated || track.LanguageCode != in.Language {
			continue
		}
		segments, err := p.FetchTrack(ctx, track, in.PreserveFormatting)
		if err != nil {
			return skipOrAbort(err)
		}
		return transcript.Result{
			Segments:    segments,
			Language:    track.LanguageCode,
			IsGenerated: false,
		}, OutcomeDone, nil
	}
	return transcript.Result{}, OutcomeSkip, nil
}

// generatedOriginalLanguage fetches the first auto-generated track in
// its own spoken language. The requested language is ignored here:
// generated tracks only exist in the audio's language.
func generatedOriginalLanguage(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error) {
	if listErr != nil {
		return transcript.Result{}, OutcomeSkip, nil
	}
	for _, track := range listing.Tracks {
		if !track.IsGenerated {
			continue
		}
		segments, err := p.FetchTrack(ctx, track, in.PreserveFormatting)
		if err != nil {
			return skipOrAbort(err)
		}
		return transcript.Result{
			Segments:    segments,
			Language:    track.LanguageCode,
			IsGenerated: true,
		}, OutcomeDone, nil
	}
	return transcript.Result{}, OutcomeSkip, nil
}

// manualAnyLanguageTranslated translates the first translatable manual
// track into the requested language. Tracks that do not support
// translation are passed over rather than failing the strategy.
func manualAnyLanguageTranslated(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error) {
	if listErr != nil {
		return transcript.Result{}, OutcomeSkip, nil
	}
	for _, track := range listing.Tracks {
		if track.IsGenerated || !track.IsTranslatable {
			continue
		}
		// A manual track already in the requested language belongs to
		// strategy 1; translating it to itself would be a no-op fetch.
		if track.LanguageCode == in.Language {
			continue
		}
		segments, err := p.TranslateTrack(ctx, track, in.Language, in.PreserveFormatting)
		if errors.Is(err, transcript.ErrNotTranslatable) {
			continue
		}
		if err != nil {
			return skipOrAbort(err)
		}
		return transcript.Result{
			Segments:         segments,
			Language:         in.Language,
			IsGenerated:      false,
			Translated:       true,
			OriginalLanguage: track.LanguageCode,
		}, OutcomeDone, nil
	}
	return transcript.Result{}, OutcomeSkip, nil
}

// anyAvailableAsIs takes the first listed track of any kind and language
// and returns it untranslated.
func anyAvailableAsIs(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error) {
	if listErr != nil || len(listing.Tracks) == 0 {
		return transcript.Result{}, OutcomeSkip, nil
	}
	track := listing.Tracks[0]
	segments, err := p.FetchTrack(ctx, track, in.PreserveFormatting)
	if err != nil {
		return skipOrAbort(err)
	}
	return transcript.Result{
		Segments:    segments,
		Language:    track.LanguageCode,
		IsGenerated: track.IsGenerated,
	}, OutcomeDone, nil
}

// directFetch is the last resort when the listing itself failed: one
// fetch-by-language attempt that needs no track enumeration.
func directFetch(ctx context.Context, p Provider, in Input, listing transcript.Listing, listErr error) (transcript.Result, Outcome, error) {
	if listErr == nil {
		return transcript.Result{}, OutcomeSkip, nil
	}
	segments, err := p.FetchDirect(ctx, in.VideoID, in.Language, in.PreserveFormatting)
	if err != nil {
		return skipOrAbort(err)
	}
	return transcript.Result{
		Segments: segments,
		Language: in.Language,
	}, OutcomeDone, nil
}

func describeTracks(tracks []transcript.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		label := t.LanguageCode
		if t.IsGenerated {
			label += " (generated)"
		}
		out = append(out, label)
	}
	return out
}

func skipOrAbort(err error) (transcript.Result, Outcome, error) {
	if errors.Is(err, transcript.ErrTranscriptsDisabled) {
		return transcript.Result{}, OutcomeAbort, err
	}
	return transcript.Result{}, OutcomeSkip, nil
}
