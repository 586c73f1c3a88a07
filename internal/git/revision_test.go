package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a repository with one commit adding data/cust_info.csv
func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0755))
	commitFile(t, repo, root, "data/cust_info.csv", "cst_id\n1\n", "Add customers")
	return root, repo
}

func commitFile(t *testing.T, repo *git.Repository, root, name, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0644))

	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add(name)
	require.NoError(t, err)
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	root, repo := initRepo(t)

	rev, err := Resolve(filepath.Join(root, "data"))
	require.NoError(t, err)
	require.NotNil(t, rev)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head.Hash().String(), rev.Commit)
	assert.Equal(t, "master", rev.Branch)
	assert.False(t, rev.Dirty)
	assert.Equal(t, rev.Commit[:12], rev.String())
}

func TestResolveDirty(t *testing.T) {
	root, _ := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "cust_info.csv"), []byte("cst_id\n2\n"), 0644))

	rev, err := Resolve(filepath.Join(root, "data"))
	require.NoError(t, err)
	assert.True(t, rev.Dirty)
	assert.Contains(t, rev.String(), "+dirty")
}

func TestResolveIgnoresChangesOutsideDir(t *testing.T) {
	root, _ := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("notes"), 0644))

	rev, err := Resolve(filepath.Join(root, "data"))
	require.NoError(t, err)
	assert.False(t, rev.Dirty)
}

func TestResolveOutsideRepository(t *testing.T) {
	rev, err := Resolve(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, rev)
	assert.Equal(t, "", rev.String())
}

func TestHistory(t *testing.T) {
	root, repo := initRepo(t)
	commitFile(t, repo, root, "README.md", "notes", "Add readme")
	commitFile(t, repo, root, "data/cust_info.csv", "cst_id\n1\n2\n", "Add customer 2")

	commits, err := History(filepath.Join(root, "data"), 0)
	require.NoError(t, err)
	require.Len(t, commits, 2, "the readme commit does not touch data/")
	assert.Equal(t, "Add customer 2", commits[0].Message)
	assert.Equal(t, "Test User", commits[0].Author)

	limited, err := History(filepath.Join(root, "data"), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
