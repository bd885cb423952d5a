// Package pathvalidator resolves and constrains filesystem paths to a
// declared root, rejecting traversal and symlink escapes. Every other
// component that touches a user-supplied path routes it through here
// first; there is no bypass.
package pathvalidator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// maxPathLength mirrors the common Linux PATH_MAX; callers on other
// platforms still benefit from a conservative cap.
const maxPathLength = 4096

// Validator constrains every path it resolves to lie inside Root.
type Validator struct {
	// Root is the absolute, symlink-resolved directory every candidate
	// path must stay inside.
	Root string
}

// New builds a Validator rooted at root. root is resolved to an absolute,
// symlink-free path at construction time so later comparisons are cheap
// and exact.
func New(root string) (*Validator, error) {
	if strings.ContainsRune(root, 0) {
		return nil, sxnerr.New(sxnerr.KindSecurity, "%s", nullByteMessage)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindValidation, err, "resolve root %q", root)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return nil, err
	}
	return &Validator{Root: resolved}, nil
}

const nullByteMessage = "path contains a null byte"

// Resolve validates candidate (relative or absolute) against v.Root and
// returns the canonicalized absolute path. It fails if the candidate's
// canonical form does not have Root as a prefix, if any component is a
// symlink pointing outside Root, if the path is too long, or if the path
// is unreadable.
func (v *Validator) Resolve(candidate string) (string, error) {
	if strings.ContainsRune(candidate, 0) {
		return "", sxnerr.New(sxnerr.KindSecurity, "%s", nullByteMessage)
	}
	if len(candidate) > maxPathLength {
		return "", sxnerr.New(sxnerr.KindValidation, "path exceeds maximum length of %d", maxPathLength)
	}

	joined := candidate
	if !filepath.IsAbs(candidate) {
		joined = filepath.Join(v.Root, candidate)
	}
	joined = filepath.Clean(joined)

	if len(joined) > maxPathLength {
		return "", sxnerr.New(sxnerr.KindValidation, "path exceeds maximum length of %d", maxPathLength)
	}

	if !withinRoot(v.Root, joined) {
		return "", sxnerr.New(sxnerr.KindSecurity, "path %q escapes root %q", candidate, v.Root)
	}

	resolved, err := resolveSymlinkChain(v.Root, joined)
	if err != nil {
		return "", err
	}

	if !withinRoot(v.Root, resolved) {
		return "", sxnerr.New(sxnerr.KindSecurity, "path %q resolves outside root %q via symlink", candidate, v.Root)
	}

	return resolved, nil
}

func withinRoot(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// resolveExisting returns the symlink-resolved form of a path that is
// expected to already exist (used for the root itself).
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Root may not exist yet (e.g. a session directory about to
			// be created); fall back to the cleaned, unresolved form.
			return filepath.Clean(path), nil
		}
		return "", sxnerr.Wrap(sxnerr.KindValidation, err, "resolve %q", path)
	}
	return resolved, nil
}

// resolveSymlinkChain walks joined component by component from root,
// resolving any symlink it encounters and checking the result stays
// inside root at every step. The final component is permitted to be
// missing (useful for copy/render destinations); every component up to
// it must not escape.
func resolveSymlinkChain(root, joined string) (string, error) {
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", sxnerr.Wrap(sxnerr.KindSecurity, err, "relativize %q against %q", joined, root)
	}
	if rel == "." {
		return root, nil
	}

	parts := strings.Split(rel, string(filepath.Separator))
	current := root
	for i, part := range parts {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				if i == len(parts)-1 {
					// Final component may not exist yet (write target).
					return current, nil
				}
				return "", sxnerr.Wrap(sxnerr.KindNotFound, err, "path component %q does not exist", current)
			}
			return "", sxnerr.Wrap(sxnerr.KindValidation, err, "stat %q", current)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", sxnerr.Wrap(sxnerr.KindValidation, err, "resolve symlink %q", current)
			}
			if !withinRoot(root, target) {
				return "", sxnerr.New(sxnerr.KindSecurity, "symlink %q escapes root %q", current, root)
			}
			current = target
		}
	}
	return current, nil
}

// CheckReadable fails with PathNotReadableError-equivalent if path cannot
// be opened for reading.
func CheckReadable(path string) error {
	f, err := os.Open(path) //nolint:gosec // path has already been validated by Resolve
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindNotFound, err, "path %q is not readable", path)
	}
	return f.Close()
}
