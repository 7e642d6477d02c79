package usecase

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/runoshun/crew-agent/internal/domain"
)

// SyncRepositoriesOutput lists what happened to each repository, by name.
type SyncRepositoriesOutput struct {
	Cloned  []string
	Pulled  []string
	Skipped []string
	Failed  []string
}

// SyncRepositories is the use case for materializing project repositories
// in the workspace before the task loop starts.
// Fields are ordered to minimize memory padding.
type SyncRepositories struct {
	backend      domain.Backend
	cloner       domain.RepoCloner
	secrets      domain.SecretUnwrapper
	logger       domain.Logger
	projectID    string
	workspaceDir string
}

// NewSyncRepositories creates a new SyncRepositories use case.
func NewSyncRepositories(
	backend domain.Backend,
	cloner domain.RepoCloner,
	secrets domain.SecretUnwrapper,
	logger domain.Logger,
	projectID string,
	workspaceDir string,
) *SyncRepositories {
	return &SyncRepositories{
		backend:      backend,
		cloner:       cloner,
		secrets:      secrets,
		logger:       logger,
		projectID:    projectID,
		workspaceDir: workspaceDir,
	}
}

// Execute clones missing repositories and pulls existing ones.
// Per-repository failures are logged and collected, never returned.
func (uc *SyncRepositories) Execute(ctx context.Context) (out *SyncRepositoriesOutput, err error) {
	ctx, span := tracer.Start(ctx, "SyncRepositories")
	defer func() { endSpan(span, err) }()

	repos, err := uc.backend.ListRepositories(ctx, uc.projectID)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	out = &SyncRepositoriesOutput{}
	if len(repos) == 0 {
		uc.logger.Info("", "repos", "no repositories found for this project")
		return out, nil
	}

	if err := os.MkdirAll(uc.workspaceDir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	for _, repo := range repos {
		name := RepositoryDirName(repo)
		if repo.URL == "" {
			uc.logger.Warn("", "repos", fmt.Sprintf("skipping repository %s: no URL", name))
			out.Skipped = append(out.Skipped, name)
			continue
		}

		opts := domain.CloneOptions{URL: repo.URL, Dir: filepath.Join(uc.workspaceDir, name)}
		if repo.IsPrivate && repo.Token != "" {
			token, err := uc.secrets.Unwrap(repo.Token)
			if err != nil {
				uc.logger.Error("", "repos", fmt.Sprintf("repository %s: unwrap token: %v", name, err))
				out.Failed = append(out.Failed, name)
				continue
			}
			opts.Token = token
		}

		if uc.cloner.IsRepository(opts.Dir) {
			if err := uc.cloner.Pull(ctx, opts); err != nil {
				uc.logger.Error("", "repos", fmt.Sprintf("pull %s: %v", name, err))
				out.Failed = append(out.Failed, name)
				continue
			}
			uc.logger.Info("", "repos", fmt.Sprintf("pulled latest changes for %s", name))
			out.Pulled = append(out.Pulled, name)
			continue
		}

		if err := uc.cloner.Clone(ctx, opts); err != nil {
			uc.logger.Error("", "repos", fmt.Sprintf("clone %s: %v", name, err))
			out.Failed = append(out.Failed, name)
			continue
		}
		uc.logger.Info("", "repos", fmt.Sprintf("cloned %s", name))
		out.Cloned = append(out.Cloned, name)
	}
	return out, nil
}

// RepositoryDirName returns the workspace directory name for a repository:
// its name, or the last URL path segment without ".git", reduced to a single
// path element.
func RepositoryDirName(repo domain.Repository) string {
	name := repo.Name
	if name == "" && repo.URL != "" {
		if u, err := url.Parse(repo.URL); err == nil {
			name = strings.TrimSuffix(path.Base(u.Path), ".git")
		}
	}
	name = filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "unknown"
	}
	return name
}
