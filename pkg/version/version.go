package version

// Build information. Populated at build time via -ldflags:
//
//	go build -ldflags "-X anythingllm-sync/pkg/version.Version=v0.2.0 \
//	  -X anythingllm-sync/pkg/version.GitCommit=$(git rev-parse --short HEAD) \
//	  -X anythingllm-sync/pkg/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
