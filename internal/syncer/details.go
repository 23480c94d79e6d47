// internal/syncer/details.go
package syncer

import (
	"context"
	"fmt"
	"maps"
	"path"
	"strings"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// fileFlags maps a metadata flag to the lower-cased root file name prefixes that set it.
var fileFlags = map[string][]string{
	"readme":          {"readme"},
	"license":         {"license", "licence", "copying", "unlicense"},
	"changelog":       {"changelog", "changes", "history", "news"},
	"contributing":    {"contributing"},
	"funding":         {"funding"},
	"code_of_conduct": {"code_of_conduct", "code-of-conduct", "codeofconduct"},
	"security":        {"security"},
	"citation":        {"citation"},
}

// SyncExtraDetails records which well-known files sit at the root of the
// default branch under metadata.files, then queues a tag sync.
func (e *Engine) SyncExtraDetails(ctx context.Context, h model.Host, fullName string) (*model.Repository, error) {
	logger := e.logger.With("host", h.Name, "repository", fullName)

	repo, err := lookup(e.store.GetRepositoryByFullName(ctx, h.ID, fullName))
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", fullName, err)
	}
	if repo == nil || repo.Removed() {
		return repo, nil
	}

	adapter, err := e.adapterFor(h)
	if err != nil {
		return nil, err
	}

	e.enqueue(ctx, logger, queue.SyncTagsJob(h.Name, repo.FullName, false))

	files, err := adapter.FetchFiles(ctx, repo.FullName, repo.DefaultBranch)
	if custom_errors.IsNotFound(err) {
		logger.Info("Default branch not found upstream")
		return repo, nil
	}
	if err != nil {
		if soft(logger, "fetch_files", err) {
			return repo, nil
		}
		return nil, fmt.Errorf("listing files of %s: %w", repo.FullName, err)
	}

	flags := detectFiles(files)
	if current, ok := repo.Metadata["files"].(map[string]any); ok && maps.Equal(current, flags) {
		logger.Debug("File flags unchanged")
		return repo, nil
	}

	if err := e.store.SetRepositoryMetadata(ctx, repo.ID, "files", flags); err != nil {
		return nil, fmt.Errorf("updating %s: %w", repo.FullName, err)
	}
	logger.Info("Extra details synced", "files", len(files))
	updated := cloneRepository(repo)
	updated.Metadata["files"] = flags
	return updated, nil
}

func detectFiles(files []string) map[string]any {
	flags := make(map[string]any, len(fileFlags))
	for flag := range fileFlags {
		flags[flag] = false
	}
	for _, f := range files {
		name := strings.ToLower(path.Base(f))
		for flag, prefixes := range fileFlags {
			for _, p := range prefixes {
				if strings.HasPrefix(name, p) {
					flags[flag] = true
				}
			}
		}
	}
	return flags
}
