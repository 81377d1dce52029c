package eventstream

import "errors"

var (
	// ErrNilChunkEvent indicates a nil chunk event payload was provided to a publisher.
	ErrNilChunkEvent = errors.New("nil chunk event")

	// ErrNilTranscriptEvent indicates a nil transcript event payload was provided to a publisher.
	ErrNilTranscriptEvent = errors.New("nil transcript event")
)
