package domain

import "errors"

var (
	// ErrNotFound signals a missing transcript.
	ErrNotFound = errors.New("transcript not found")
	// ErrEmptyQuery signals a blank search query.
	ErrEmptyQuery = errors.New("empty query")
	// ErrEmptyTranscript signals an upload with no usable content.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrInvalidFilename signals an upload whose filename is not a .txt file.
	ErrInvalidFilename = errors.New("invalid filename, only .txt files are accepted")
	// ErrRateLimited signals a provider 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderUnavailable signals an embedding or chat provider failure
	// that survived the retry budget.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrVectorDimMismatch signals a vector whose length disagrees with the
	// configured embedding dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrBudgetExceeded signals an exhausted token budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")
)
