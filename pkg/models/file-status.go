package models

// FileStatus describes the reconciliation state of a Library, Series or
// Media row with respect to what is actually present on disk.
const (
	//tygo:emit export type FileStatus = typeof FileStatusUnknown | typeof FileStatusReady | typeof FileStatusUnsupported | typeof FileStatusError | typeof FileStatusMissing;
	FileStatusUnknown     = "unknown"
	FileStatusReady       = "ready"
	FileStatusUnsupported = "unsupported"
	FileStatusError       = "error"
	FileStatusMissing     = "missing"
)
