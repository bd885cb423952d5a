// Package detector classifies a project directory by inspecting its
// top-level signature files — no recursive directory walk, no
// execution of the project's own tooling.
package detector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// ProjectType is the detected project archetype.
type ProjectType string

const (
	TypeRails      ProjectType = "rails"
	TypeRuby       ProjectType = "ruby"
	TypeNextJS     ProjectType = "nextjs"
	TypeReact      ProjectType = "react"
	TypeTypeScript ProjectType = "typescript"
	TypeJavaScript ProjectType = "javascript"
	TypeUnknown    ProjectType = "unknown"
)

// PackageManager is the lockfile-inferred tool used to install
// dependencies.
type PackageManager string

const (
	ManagerBundler PackageManager = "bundler"
	ManagerNpm     PackageManager = "npm"
	ManagerYarn    PackageManager = "yarn"
	ManagerPnpm    PackageManager = "pnpm"
	ManagerNone    PackageManager = ""
)

// Result describes a project directory's detected type, package
// manager, and (for JavaScript projects) Node version constraint.
type Result struct {
	Type           ProjectType
	Framework      string
	PackageManager PackageManager
	Markers        []string // signature files that drove the decision, for diagnostics

	// MinNodeVersion, when non-empty, is the semver constraint found in
	// package.json's engines.node field. EngineSatisfied reports whether
	// the installed `node` (if detectable from an .nvmrc sibling) meets
	// it; this is advisory, never blocking, since sxn does not invoke
	// the project's own toolchain to check.
	MinNodeVersion  string
	EngineSatisfied bool
}

// Detect inspects path non-recursively and classifies it.
func Detect(path string) (Result, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{}, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	hasGemspec := false
	for n := range names {
		if strings.HasSuffix(n, ".gemspec") {
			hasGemspec = true
			break
		}
	}

	switch {
	case names["Gemfile"] && names["config"] && fileExists(filepath.Join(path, "config", "application.rb")):
		return withPackageManager(path, Result{Type: TypeRails, Framework: "rails", Markers: []string{"Gemfile", "config/application.rb"}}), nil
	case names["Gemfile"] || hasGemspec:
		var markers []string
		if names["Gemfile"] {
			markers = append(markers, "Gemfile")
		}
		if hasGemspec {
			markers = append(markers, "*.gemspec")
		}
		return withPackageManager(path, Result{Type: TypeRuby, Framework: "ruby", Markers: markers}), nil
	case names["package.json"]:
		return detectJavaScript(path, names)
	default:
		return Result{Type: TypeUnknown}, nil
	}
}

func detectJavaScript(path string, names map[string]bool) (Result, error) {
	raw, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return Result{}, err
	}
	var pkg struct {
		Dependencies map[string]string `json:"dependencies"`
		Engines      map[string]string `json:"engines"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return Result{}, err
	}

	result := Result{Markers: []string{"package.json"}}
	switch {
	case hasDep(pkg.Dependencies, "next"):
		result.Type, result.Framework = TypeNextJS, "next"
	case hasDep(pkg.Dependencies, "react"):
		result.Type, result.Framework = TypeReact, "react"
	case fileExists(filepath.Join(path, "tsconfig.json")):
		result.Type, result.Framework = TypeTypeScript, "typescript"
		result.Markers = append(result.Markers, "tsconfig.json")
	default:
		result.Type, result.Framework = TypeJavaScript, "javascript"
	}

	if constraint, ok := pkg.Engines["node"]; ok {
		result.MinNodeVersion = constraint
		result.EngineSatisfied = engineSatisfied(path, constraint)
	}

	return withPackageManager(path, result), nil
}

// engineSatisfied checks an .nvmrc sibling (if any) against a
// package.json engines.node constraint of the form ">=X.Y.Z". Absent
// either file, it reports true: there is nothing to contradict.
func engineSatisfied(path, constraint string) bool {
	raw, err := os.ReadFile(filepath.Join(path, ".nvmrc"))
	if err != nil {
		return true
	}
	have := "v" + strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(raw)), "v"))
	want := strings.TrimLeft(constraint, "^>=~ ")
	if !strings.HasPrefix(want, "v") {
		want = "v" + want
	}
	if !semver.IsValid(have) || !semver.IsValid(canonicalize(want)) {
		return true
	}
	return semver.Compare(have, canonicalize(want)) >= 0
}

// canonicalize pads a two-part version ("v20.1") to the three-part form
// golang.org/x/mod/semver requires.
func canonicalize(v string) string {
	if strings.Count(v, ".") == 1 {
		return v + ".0"
	}
	return v
}

func hasDep(deps map[string]string, name string) bool {
	_, ok := deps[name]
	return ok
}

func withPackageManager(path string, r Result) Result {
	switch {
	case fileExists(filepath.Join(path, "Gemfile.lock")):
		r.PackageManager = ManagerBundler
	case fileExists(filepath.Join(path, "pnpm-lock.yaml")):
		r.PackageManager = ManagerPnpm
	case fileExists(filepath.Join(path, "yarn.lock")):
		r.PackageManager = ManagerYarn
	case fileExists(filepath.Join(path, "package-lock.json")):
		r.PackageManager = ManagerNpm
	default:
		r.PackageManager = ManagerNone
	}
	return r
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
