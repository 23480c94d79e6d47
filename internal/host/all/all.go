// internal/host/all/all.go

// Package all registers every provider adapter with package host.
package all

import (
	_ "forge-sync/internal/host/bitbucket"
	_ "forge-sync/internal/host/gitea"
	_ "forge-sync/internal/host/github"
	_ "forge-sync/internal/host/gitlab"
	_ "forge-sync/internal/host/sourcehut"
)
