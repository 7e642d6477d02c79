// Package git materializes project repositories in the agent workspace.
package git

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/runoshun/crew-agent/internal/domain"
)

// tokenUser is the basic-auth user name sent alongside an access token.
const tokenUser = "x-access-token"

// Client clones and updates repositories with go-git.
type Client struct{}

// NewClient creates a new git client.
func NewClient() *Client {
	return &Client{}
}

// Ensure Client implements domain.RepoCloner interface.
var _ domain.RepoCloner = (*Client)(nil)

// IsRepository reports whether dir already holds a git checkout.
func (c *Client) IsRepository(dir string) bool {
	_, err := gogit.PlainOpen(dir)
	return err == nil
}

// Clone clones opts.URL into opts.Dir.
func (c *Client) Clone(ctx context.Context, opts domain.CloneOptions) error {
	_, err := gogit.PlainCloneContext(ctx, opts.Dir, false, &gogit.CloneOptions{
		URL:  opts.URL,
		Auth: authFor(opts.Token),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", opts.URL, err)
	}
	return nil
}

// Pull fast-forwards the checkout in opts.Dir from origin.
// An already up-to-date checkout is not an error.
func (c *Client) Pull(ctx context.Context, opts domain.CloneOptions) error {
	repo, err := gogit.PlainOpen(opts.Dir)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", opts.Dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName: gogit.DefaultRemoteName,
		Auth:       authFor(opts.Token),
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pull %s: %w", opts.Dir, err)
	}
	return nil
}

func authFor(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: token}
}
