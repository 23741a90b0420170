// Package history records every change to the data directory as a git commit.
//
// The repository lives at the root of the data directory and is driven by
// go-git, so no git binary is needed.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxLog caps the number of commits Log returns.
const maxLog = 1000

// Author identifies who made a change. Empty fields fall back to the
// repository defaults.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry of the change log.
type Commit struct {
	Hash       string
	Message    string
	Body       string
	Author     string
	AuthorDate time.Time
	Files      []string
}

// Repo is a git repository over a data directory.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository at dir, initializing it when needed.
func Open(dir, defaultName, defaultEmail string) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Repo{dir: dir, defaultName: defaultName, defaultEmail: defaultEmail, repo: repo}, nil
}

// Dir returns the working directory.
func (r *Repo) Dir() string {
	return r.dir
}

// CommitTx runs fn while holding the repository lock and commits the files it
// returns, relative to Dir. Nothing is committed when fn fails, returns no
// files or leaves them unchanged. The commit is not abandoned once fn has
// written files, so ctx cancellation is ignored.
func (r *Repo) CommitTx(_ context.Context, author Author, fn func() (msg string, files []string, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, files, err := fn()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		if _, err := w.Add(f); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if !staged(status, files) {
		return nil
	}

	name, email := author.Name, author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: name, Email: email, When: now},
		Committer: &object.Signature{Name: r.defaultName, Email: r.defaultEmail, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Commit commits files with msg.
func (r *Repo) Commit(ctx context.Context, author Author, msg string, files ...string) error {
	return r.CommitTx(ctx, author, func() (string, []string, error) {
		return msg, files, nil
	})
}

// Log returns up to n commits touching path, newest first. An empty path
// means the whole repository. n <= 0 or above 1000 means 1000.
func (r *Repo) Log(_ context.Context, path string, n int) ([]*Commit, error) {
	if n <= 0 || n > maxLog {
		n = maxLog
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := &gogit.LogOptions{}
	if path != "" && path != "." {
		opts.FileName = &path
	}
	iter, err := r.repo.Log(opts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var out []*Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		commit := &Commit{
			Hash:       c.Hash.String(),
			Message:    subject,
			Body:       strings.TrimSpace(body),
			Author:     c.Author.Name,
			AuthorDate: c.Author.When,
		}
		if stats, err := c.Stats(); err == nil {
			for _, s := range stats {
				commit.Files = append(commit.Files, s.Name)
			}
		}
		out = append(out, commit)
	}
	return out, nil
}

// staged reports whether any of files has a change in the index.
func staged(status gogit.Status, files []string) bool {
	for _, f := range files {
		fs, ok := status[f]
		if !ok {
			continue
		}
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}
