package lifecycle

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/loykin/orchestrator/internal/orcherr"
)

// acquireSource materializes an AppDescriptor's SourceLocator at dest: a
// shallow git clone for a repository URL, or a recursive copy for a local
// path. Grounded on internal/script/steps_script.go's script.download,
// which clones the same way for a script.start uri.
func acquireSource(ctx context.Context, locator, dest string) error {
	if looksLikeRemote(locator) {
		_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: locator, Depth: 1})
		if err != nil {
			return orcherr.Wrap(orcherr.KindCloneFailed, "failed to clone app source", err).WithDetail(locator)
		}
		return nil
	}
	info, err := os.Stat(locator)
	if err != nil {
		return orcherr.Wrap(orcherr.KindCloneFailed, "local source locator does not exist", err).WithDetail(locator)
	}
	if !info.IsDir() {
		return orcherr.New(orcherr.KindCloneFailed, "local source locator is not a directory").WithDetail(locator)
	}
	if err := copyDir(locator, dest); err != nil {
		return orcherr.Wrap(orcherr.KindCloneFailed, "failed to copy local app source", err).WithDetail(locator)
	}
	return nil
}

func looksLikeRemote(locator string) bool {
	return strings.Contains(locator, "://") || strings.HasSuffix(locator, ".git") || strings.HasPrefix(locator, "git@")
}

func cloneScriptSource(uri, dest string) error {
	return acquireSource(context.Background(), uri, dest)
}

// copyDir recursively copies src into dst, creating directories as
// needed. Used only for the "local path" half of acquireSource; the git
// half is handled by go-git directly.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()
	_, err = io.Copy(out, in)
	return err
}
