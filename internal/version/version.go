package version

import (
	"os/exec"
	"runtime/debug"
	"strings"
)

// Overridden at link time for release builds.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Resolve returns the version string shown to users. Release builds report
// the bare version; anything built from a checkout gets a git-derived
// suffix, falling back to the VCS revision stamped into the build info.
func Resolve() string {
	return resolveVersion(Version, runGit, buildRevision)
}

func resolveVersion(base string, git func(...string) (string, error), revision func() string) string {
	if base == "" {
		base = "0.0.0"
	}

	if suffix := gitSuffix(base, git); suffix != "" {
		return base + "-" + suffix
	}
	if inRepo(git) {
		return base
	}
	if rev := revision(); rev != "" {
		return base + "+" + rev
	}
	return base
}

func inRepo(git func(...string) (string, error)) bool {
	_, err := git("rev-parse", "--git-dir")
	return err == nil
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if !inRepo(git) {
		return ""
	}

	// HEAD exactly on a release tag means no suffix at all.
	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	prefix := "v" + base + "-"
	return strings.TrimPrefix(desc, prefix)
}

func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	var rev, dirty string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			if setting.Value == "true" {
				dirty = "-dirty"
			}
		}
	}

	if rev == "" {
		return ""
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev + dirty
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
