// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize is the maximum accepted input size when no
// explicit limit is configured. Settings files are tiny; anything near
// this limit is almost certainly not a settings file.
const DefaultMaxFileSize int64 = 1 << 20 // 1 MiB

// Option configures a ParseAndDecode call.
type Option func(*options)

type options struct {
	filename    string
	maxFileSize int64
	concrete    bool
}

func defaultOptions() options {
	return options{
		maxFileSize: DefaultMaxFileSize,
		concrete:    false,
	}
}

// WithFilename sets the file name used in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// WithMaxFileSize overrides the maximum accepted input size.
func WithMaxFileSize(size int64) Option {
	return func(o *options) { o.maxFileSize = size }
}

// WithConcrete requires every field of the decoded value to be
// concrete. Leave it off for schemas with optional fields.
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}
