package models

// Config collects the flags shared by the trap tools.
type Config struct {
	Color    bool
	Verbose  bool
	TraceVec bool
	TraceMem bool

	// path for the binary trap trace, empty disables recording
	TraceFile string
}
