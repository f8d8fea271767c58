package models

import (
	"fmt"
)

// FetchError is returned when bars could not be retrieved from the upstream source
type FetchError struct {
	Symbol    string
	Timeframe string
	Err       error

	// Permanent marks a failure that will not succeed on retry,
	// such as an unknown symbol or interval
	Permanent bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Symbol, e.Timeframe, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// EmptyDataError is returned when the upstream source answered with no bars
type EmptyDataError struct {
	Symbol    string
	Timeframe string
}

func (e *EmptyDataError) Error() string {
	return fmt.Sprintf("no data returned for %s %s", e.Symbol, e.Timeframe)
}

// InsufficientDataError is returned when a series is too short to evaluate
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d bars, need %d", e.Have, e.Need)
}

// ComputationError wraps an unexpected failure inside indicator math
type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
