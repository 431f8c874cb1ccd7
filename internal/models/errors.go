package models

import "errors"

var (
	ErrMalformedRow        = errors.New("malformed row")
	ErrEmptySeries         = errors.New("empty series")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrUnknownInstrument   = errors.New("unknown instrument")
	ErrNoDateColumns       = errors.New("no date columns")
	ErrUnknownIndicator    = errors.New("unknown indicator")
	ErrInvalidWindow       = errors.New("invalid indicator window")
	ErrUnknownRule         = errors.New("unknown signal rule")
	ErrInvalidSortKey      = errors.New("invalid sort key")
	ErrInvalidBar          = errors.New("invalid bar (high < low)")
	ErrUnsortedSeries      = errors.New("series is not strictly increasing by date")
)
