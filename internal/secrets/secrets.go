// Package secrets classifies files and file content as sensitive, for
// the File Copier's default-permission and plaintext-copy-warning logic,
// using layered entropy scoring plus gitleaks pattern detection.
package secrets

import (
	"math"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// highEntropyPattern matches alphanumeric runs long enough to plausibly
// be a secret.
var highEntropyPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy, in bits/char, for a
// matched run to be treated as a secret, chosen to flag typical
// API keys/tokens while skipping common words.
const entropyThreshold = 4.5

// namePatterns are basename globs that are always treated as
// secret-like regardless of content.
var namePatterns = []string{
	"*.key",
	"*.pem",
	".env",
	".env.*",
	"credentials*",
	"*.credentials",
}

var (
	detectorOnce sync.Once
	detector     *detect.Detector
)

func getDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		detector = d
	})
	return detector
}

// LooksSecretByName reports whether basename matches one of the
// secret-like naming conventions (*.key, .env*, ...).
func LooksSecretByName(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range namePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ContainsSecretContent reports whether data contains a high-entropy
// run or a gitleaks-recognized secret pattern. Used when a file's name
// doesn't already mark it as secret-like but its content might.
func ContainsSecretContent(data []byte) bool {
	s := string(data)

	for _, loc := range highEntropyPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			return true
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret != "" {
				return true
			}
		}
	}

	return false
}

// Classify reports whether path/data should be treated as sensitive,
// combining the name-based and content-based checks. content may be nil
// to skip the content scan (e.g. for symlink strategy, or very large
// files where a name check alone is the practical choice).
func Classify(path string, content []byte) bool {
	if LooksSecretByName(path) {
		return true
	}
	if content != nil {
		return ContainsSecretContent(content)
	}
	return false
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
