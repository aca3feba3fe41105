package app

import "errors"

var (
	// ErrNoPhoto indicates a photo event without any image variant.
	ErrNoPhoto = errors.New("photo event has no image")
)
