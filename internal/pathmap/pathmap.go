// Package pathmap translates the logical paths used inside install/run
// scripts ("~/app", "{{cwd}}", legacy Windows-style absolutes) into
// host-absolute paths rooted under the platform's install tree, and rejects
// any resolution that would escape that tree.
//
// Every File System API and Shell Runner operation resolves its path
// arguments through a Mapper before touching disk; none of them call
// filepath.Join on caller-controlled input directly.
package pathmap

import (
	"path"
	"runtime"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// Mapper resolves logical paths against a fixed pair of roots: the app's
// own install root, and a shared resource root used for de-duplicated
// downloads (e.g. large model files symlinked into multiple apps).
type Mapper struct {
	installRoot string
	sharedRoot  string
}

// New builds a Mapper rooted at installRoot, with sharedRoot (may be empty)
// as the secondary root permitted for fs.link targets.
func New(installRoot, sharedRoot string) *Mapper {
	return &Mapper{installRoot: installRoot, sharedRoot: sharedRoot}
}

// InstallRoot returns the app install root this Mapper is bound to.
func (m *Mapper) InstallRoot() string { return m.installRoot }

// SharedRoot returns the shared resource root, or "" if none was configured.
func (m *Mapper) SharedRoot() string { return m.sharedRoot }

// Resolve maps a logical path to a host-absolute path under the install
// root. It accepts:
//   - relative paths, resolved against the install root;
//   - "~/..." paths, rewritten to be relative to the install root (the
//     orchestrator has no concept of a user home inside an app tree);
//   - legacy Windows-style absolutes ("C:\foo\bar"), stripped of their
//     drive letter and backslash separators before being treated as
//     relative;
//   - paths already absolute under the install root, passed through.
//
// A path that climbs above the install root through ".." (such as
// "../../etc/passwd") returns orcherr.KindPathEscape. Every other result
// is joined with securejoin, which keeps a symlink planted by an installer
// script from walking the resolved path outside the install root.
func (m *Mapper) Resolve(logical string) (string, error) {
	return resolveUnder(m.installRoot, logical)
}

// ResolveShared maps a logical path against the shared resource root
// instead of the install root. Used by fs.link to locate or create the
// de-duplicated target. Fails with orcherr.KindIllegalState if no shared
// root was configured for this Mapper.
func (m *Mapper) ResolveShared(logical string) (string, error) {
	if m.sharedRoot == "" {
		return "", orcherr.New(orcherr.KindIllegalState, "no shared resource root configured for this app")
	}
	return resolveUnder(m.sharedRoot, logical)
}

func resolveUnder(root, logical string) (string, error) {
	rel := normalize(logical)
	if c := path.Clean(rel); c == ".." || strings.HasPrefix(c, "../") {
		return "", orcherr.New(orcherr.KindPathEscape, "path escapes root").WithDetail(logical)
	}
	resolved, err := securejoin.SecureJoin(root, rel)
	if err != nil {
		return "", orcherr.Wrap(orcherr.KindPathEscape, "", err).WithDetail(logical)
	}
	return resolved, nil
}

// normalize strips the path down to something safe to hand to securejoin as
// a relative component: home-prefix rewritten away, backslashes turned into
// forward slashes, drive letters dropped.
func normalize(logical string) string {
	p := logical
	switch {
	case strings.HasPrefix(p, "~/"):
		p = p[2:]
	case p == "~":
		p = "."
	}
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		// "C:\foo\bar" or "C:/foo/bar" — legacy absolute path baked into an
		// old script; treat the remainder as relative to the install root.
		p = p[2:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		p = "."
	}
	return p
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// HostSeparatorHint reports the path separator style scripts authored for
// this host should assume; only used for cosmetic rewriting of log output,
// never for path resolution itself.
func HostSeparatorHint() string {
	if runtime.GOOS == "windows" {
		return "\\"
	}
	return "/"
}
