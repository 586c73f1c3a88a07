package git

import (
	stderrors "errors"
	"path/filepath"
	"strings"
	"time"

	"medallion/pkg/errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitInfo represents information about a git commit
type CommitInfo struct {
	Hash    string
	Message string
	Author  string
	Date    time.Time
}

// Revision identifies the version of the source files a run read
type Revision struct {
	Commit string
	Branch string
	Dirty  bool
}

// String renders the short hash, with a +dirty suffix for uncommitted changes
func (r *Revision) String() string {
	if r == nil || r.Commit == "" {
		return ""
	}
	s := r.Commit
	if len(s) > 12 {
		s = s[:12]
	}
	if r.Dirty {
		s += "+dirty"
	}
	return s
}

// Resolve finds the repository containing dir and reports its HEAD. A
// directory outside any repository yields nil without error.
func Resolve(dir string) (*Revision, error) {
	repo, root, err := open(dir)
	if err != nil || repo == nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to read HEAD").
			WithContext("repository", root)
	}

	rev := &Revision{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return rev, nil
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to read worktree status").
			WithContext("repository", root)
	}

	prefix := relativePrefix(root, dir)
	for path, st := range status {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			rev.Dirty = true
			break
		}
	}
	return rev, nil
}

// History returns up to limit commits that touched files under dir, newest first
func History(dir string, limit int) ([]CommitInfo, error) {
	repo, root, err := open(dir)
	if err != nil || repo == nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to read HEAD").
			WithContext("repository", root)
	}

	prefix := relativePrefix(root, dir)
	iter, err := repo.Log(&git.LogOptions{
		From: head.Hash(),
		PathFilter: func(path string) bool {
			return strings.HasPrefix(path, prefix)
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to read commit log")
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return errStop
		}
		commits = append(commits, CommitInfo{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			Date:    c.Author.When,
		})
		return nil
	})
	if err != nil && !stderrors.Is(err, errStop) {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to walk commit log")
	}
	return commits, nil
}

var errStop = stderrors.New("stop")

func open(dir string) (*git.Repository, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeSourceNotFound, "invalid source directory").
			WithContext("path", dir)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if stderrors.Is(err, git.ErrRepositoryNotExists) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeSourceUnreadable, "failed to open repository").
			WithContext("path", abs)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return repo, abs, nil
	}
	return repo, worktree.Filesystem.Root(), nil
}

// relativePrefix is dir relative to the repository root, in git's slash form
func relativePrefix(root, dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel) + "/"
}
