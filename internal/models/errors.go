package models

import "errors"

var (
	// ErrConfiguration marks an unknown frequency, strategy or an invalid parameter.
	ErrConfiguration = errors.New("configuration error")
	// ErrDataIntegrity marks malformed events or misaligned series.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrInsufficientData marks a degenerate fitting window.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotFitted is returned when a forecast is requested from an unfitted model.
	ErrNotFitted = errors.New("model not fitted")
)
