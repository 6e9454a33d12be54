package config

const (
	// MaxGoalTitleLength is the maximum length for stored goal titles.
	// Clients send at most 60 characters; the slack covers older clients.
	MaxGoalTitleLength = 255

	// MaxMessageLength bounds a single message sent to /stream-goal.
	MaxMessageLength = 20000

	// MaxStreamMessages bounds the conversation context of one stream request.
	MaxStreamMessages = 200

	// MaxModelIDLength bounds model identifiers such as "vendor/model:free".
	MaxModelIDLength = 200

	// MaxLogFiles is how many CLI log files are kept.
	MaxLogFiles = 10
)
