package config

import "time"

// Timeout constants
const (
	// HTTP timeouts for the generative gateway. Transcription runs on the
	// user-synchronous path and gets the tightest budget.
	GenerateRequestTimeout   = 60 * time.Second
	TranscribeRequestTimeout = 30 * time.Second
	SynthesizeRequestTimeout = 60 * time.Second

	// Server timeouts
	ServerShutdownTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Test timeouts
	TestTimeout = 100 * time.Millisecond
)

// Default configuration values
const (
	// Session lifetime
	DefaultSessionTTLHours = 24

	// Admission control defaults: 100 requests per sliding 60 second window
	DefaultRateLimitRequests      = 100
	DefaultRateLimitWindowSeconds = 60

	// Audio artifact defaults
	DefaultMaxUploadBytes      = 25 * 1024 * 1024 // 25 MB upload ceiling
	DefaultAudioRetentionHours = 24

	// Speech synthesis defaults
	DefaultTTSVoice = "alloy"
	DefaultTTSSpeed = 0.9

	// Problem generation defaults
	DefaultProblemHistoryWindow = 10
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self' blob: data:;"
)
