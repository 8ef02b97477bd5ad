package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func gitStub(exact string, exactErr error, describe string, describeErr error) func(...string) (string, error) {
	return func(args ...string) (string, error) {
		if len(args) == 0 {
			return "", errors.New("no args")
		}
		switch args[0] {
		case "rev-parse":
			return ".git", nil
		case "describe":
			for _, arg := range args {
				if arg == "--exact-match" {
					return exact, exactErr
				}
			}
			return describe, describeErr
		}
		return "", errors.New("unexpected git subcommand")
	}
}

func noRepo(...string) (string, error) {
	return "", errors.New("not a git repository")
}

func noRevision() string { return "" }

func TestResolveTaggedRelease(t *testing.T) {
	t.Parallel()

	git := gitStub("v0.1.0", nil, "", nil)
	require.Equal(t, "0.1.0", resolveVersion("0.1.0", git, noRevision))
}

func TestResolveCommitsPastTag(t *testing.T) {
	t.Parallel()

	git := gitStub("", errors.New("no tag"), "v0.1.0-4-gdeadbe", nil)
	require.Equal(t, "0.1.0-4-gdeadbe", resolveVersion("0.1.0", git, noRevision))
}

func TestResolveDirtyTree(t *testing.T) {
	t.Parallel()

	git := gitStub("", errors.New("no tag"), "v0.1.0-4-gdeadbe-dirty", nil)
	require.Equal(t, "0.1.0-4-gdeadbe-dirty", resolveVersion("0.1.0", git, noRevision))
}

func TestResolveOutsideRepoUsesBuildRevision(t *testing.T) {
	t.Parallel()

	revision := func() string { return "abcdef123456" }
	require.Equal(t, "0.1.0+abcdef123456", resolveVersion("0.1.0", noRepo, revision))
}

func TestResolveOutsideRepoWithoutBuildInfo(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.1.0", resolveVersion("0.1.0", noRepo, noRevision))
}

func TestResolveEmptyBase(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.0.0", resolveVersion("", noRepo, noRevision))
}

func TestResolveDescribeFailure(t *testing.T) {
	t.Parallel()

	git := gitStub("", errors.New("no tag"), "", errors.New("describe failed"))
	require.Equal(t, "0.1.0", resolveVersion("0.1.0", git, noRevision))
}
