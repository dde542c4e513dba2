package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X astroscope/internal/config.version=1.2.3 \
//	    -X astroscope/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// UserAgent identifies service on outbound requests, e.g.
// "astroscope-api/1.2.3 (abc1234)".
func (b BuildInfo) UserAgent(service string) string {
	if b.Commit == "" || b.Commit == "none" {
		return service + "/" + b.Version
	}
	return service + "/" + b.Version + " (" + b.Commit + ")"
}
