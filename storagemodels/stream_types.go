/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"
)

// StreamResult is one element of a document stream. Either Item or Error is set.
type StreamResult[T any] struct {
	Item  T              // the loaded document
	Raw   map[string]any // stored form as returned by the driver
	Error error
	Meta  StreamMeta
}

// StreamMeta describes where a result sits in its stream.
type StreamMeta struct {
	Index     int64 // 0-based
	Timestamp time.Time
}

// StreamOptions configures a stream.
type StreamOptions struct {
	BufferSize      int
	ProgressHandler func(StreamProgress)
	// ErrorHandler decides whether a document that fails to load is skipped (true) or ends the
	// stream (false). Without a handler the first failure ends the stream.
	ErrorHandler func(error) bool
}

// StreamProgress is reported after every delivered document.
type StreamProgress struct {
	ItemsProcessed int64
	Errors         []error // skipped load failures
	StartTime      time.Time
	CurrentRate    float64 // documents per second
}

type StreamOption func(*StreamOptions)

// DefaultStreamOptions buffers 100 results.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		BufferSize: 100,
	}
}

func WithBufferSize(size int) StreamOption {
	return func(opts *StreamOptions) {
		if size >= 0 {
			opts.BufferSize = size
		}
	}
}

func WithProgressHandler(handler func(StreamProgress)) StreamOption {
	return func(opts *StreamOptions) {
		opts.ProgressHandler = handler
	}
}

func WithErrorHandler(handler func(error) bool) StreamOption {
	return func(opts *StreamOptions) {
		opts.ErrorHandler = handler
	}
}
