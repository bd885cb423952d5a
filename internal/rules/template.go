package rules

import (
	"os"
	"path/filepath"

	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/pathvalidator"
	"github.com/sxn-dev/sxn/internal/sxnerr"
	"github.com/sxn-dev/sxn/internal/tmpl"
)

// runTemplate reads src (through validator), renders it against ns (with
// variables merged into ns.Custom, overriding any key ns already
// carries), and writes the result to dst (through validator). If dst
// already exists and overwrite is false, nothing is written and the
// second return value is true. Otherwise it returns a change-log entry
// filecopier.Rollback can undo.
func runTemplate(validator *pathvalidator.Validator, ns tmpl.Namespace, src, dst string, variables map[string]any, overwrite bool) (filecopier.Change, bool, error) {
	ns.Custom = mergeCustom(ns.Custom, variables)

	srcAbs, err := validator.Resolve(src)
	if err != nil {
		return filecopier.Change{}, false, err
	}
	if err := pathvalidator.CheckReadable(srcAbs); err != nil {
		return filecopier.Change{}, false, sxnerr.Wrap(sxnerr.KindNotFound, err, "template source %q", src)
	}
	raw, err := os.ReadFile(srcAbs) //nolint:gosec // srcAbs validated by pathvalidator
	if err != nil {
		return filecopier.Change{}, false, sxnerr.Wrap(sxnerr.KindExecution, err, "read template %q", src)
	}

	rendered, err := tmpl.Render(string(raw), ns)
	if err != nil {
		return filecopier.Change{}, false, err
	}

	dstAbs, err := validator.Resolve(dst)
	if err != nil {
		return filecopier.Change{}, false, err
	}
	prior, err := filecopier.CapturePrior(dstAbs)
	if err != nil {
		return filecopier.Change{}, false, err
	}
	if prior.Existed && !overwrite {
		return filecopier.Change{}, true, nil
	}

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return filecopier.Change{}, false, sxnerr.Wrap(sxnerr.KindExecution, err, "create parent directories for %q", dst)
	}
	if err := os.WriteFile(dstAbs, []byte(rendered), 0o644); err != nil {
		return filecopier.Change{}, false, sxnerr.Wrap(sxnerr.KindExecution, err, "write rendered template %q", dst)
	}

	kind := filecopier.ChangeFileCopied
	if !prior.Existed {
		kind = filecopier.ChangeFileCreated
	}
	return filecopier.Change{Kind: kind, Target: dstAbs, Prior: prior}, false, nil
}

// mergeCustom returns a new map combining base with overrides layered on
// top, leaving both inputs untouched.
func mergeCustom(base, overrides map[string]any) map[string]any {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
