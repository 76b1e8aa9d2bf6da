package concierge

import (
	"errors"

	"github.com/codewandler/concierge-go/audio"
)

var (
	ErrPermissionDenied = audio.ErrPermissionDenied
	ErrAudioOutput      = errors.New("failed to open audio output")
	ErrChannelOpen      = errors.New("failed to open live channel")
	ErrChannel          = errors.New("live channel failed")
	ErrSessionActive    = errors.New("voice session already active")
)
