package transcript

import "errors"

var (
	// ErrTranscriptsDisabled means captions are turned off for the video
	// entirely. Terminal: no fallback strategy can recover from it.
	ErrTranscriptsDisabled = errors.New("transcripts are disabled for this video")

	// ErrNoTranscriptAvailable means every acquisition strategy was
	// exhausted without producing a transcript.
	ErrNoTranscriptAvailable = errors.New("no transcript available for this video")

	// ErrInvalidProxyCiphertext covers every proxy decryption failure:
	// malformed base64, bad structure, auth tag mismatch, wrong secret.
	// Callers cannot tell which sub-check failed.
	ErrInvalidProxyCiphertext = errors.New("invalid proxy ciphertext")

	// ErrProxyDecryptionUnavailable is returned when a request supplies a
	// proxy ciphertext but no decryption secret is configured.
	ErrProxyDecryptionUnavailable = errors.New("proxy decryption is not configured")

	// ErrNotTranslatable marks a track the provider cannot translate.
	ErrNotTranslatable = errors.New("track does not support translation")
)
