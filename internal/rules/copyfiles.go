package rules

import (
	"os"
	"strconv"

	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// runCopyFiles performs every file entry via the copier, returning the
// change log entries actually produced (skipped optional sources have
// no change to roll back and are not recorded).
func runCopyFiles(copier *filecopier.Copier, entries []FileEntry) ([]filecopier.Change, error) {
	var changes []filecopier.Change
	for _, entry := range entries {
		mode, err := parsePermissions(entry.Permissions)
		if err != nil {
			return changes, err
		}
		result, err := copier.Copy(filecopier.Request{
			Source:      entry.Source,
			Destination: entry.Destination,
			Strategy:    entry.Strategy,
			Mode:        mode,
			Encrypt:     entry.Encrypt,
			Required:    entry.Required,
		})
		if err != nil {
			return changes, err
		}
		if !result.Skipped {
			changes = append(changes, result.Change)
		}
	}
	return changes, nil
}

// parsePermissions reads an octal permissions string (e.g. "0600") into
// an *os.FileMode, or returns nil if perm is empty so the copier falls
// back to its own default.
func parsePermissions(perm string) (*os.FileMode, error) {
	if perm == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(perm, 8, 32)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindValidation, err, "invalid permissions %q", perm)
	}
	mode := os.FileMode(v)
	return &mode, nil
}
