package ir

// Version constants for the record format and the settlement engine.
const (
	// RecordVersion is the canonical record schema version. It is part of
	// every domain prefix in hash.go.
	RecordVersion = "1"

	// EngineVersion is the streampay release.
	EngineVersion = "0.1.0"
)
