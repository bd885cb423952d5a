// Package filecopier copies or symlinks files into a session directory
// with mode control and optional at-rest encryption of sensitive
// payloads, recording enough of each change to roll it back.
package filecopier

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"

	"github.com/sxn-dev/sxn/internal/pathvalidator"
	"github.com/sxn-dev/sxn/internal/secrets"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// Strategy selects how a file is materialized at its destination.
type Strategy string

const (
	StrategyCopy    Strategy = "copy"
	StrategySymlink Strategy = "symlink"
)

// EncryptionScheme identifies the at-rest cipher used for encrypted
// destinations, recorded in the change log so rollback/inspection can
// tell plaintext and ciphertext apart without guessing.
const EncryptionScheme = "aes-256-gcm-hkdf-sha256"

// secretDefaultMode is applied to secret-like basenames when the rule
// does not specify an explicit mode.
const secretDefaultMode = os.FileMode(0o600)

// defaultMode is applied to ordinary files when the rule does not
// specify an explicit mode.
const defaultMode = os.FileMode(0o644)

// dirMode is used for any parent directories the Copier creates.
const dirMode = os.FileMode(0o755)

// ChangeKind enumerates the change-log entry kinds this package produces.
type ChangeKind string

const (
	ChangeFileCreated    ChangeKind = "file_created"
	ChangeFileCopied     ChangeKind = "file_copied"
	ChangeSymlinkCreated ChangeKind = "symlink_created"
)

// PriorState captures what, if anything, occupied Destination before
// the copy, so Rollback can restore it.
type PriorState struct {
	Existed bool
	Content []byte
	Mode    os.FileMode
	// WasSymlink records whether the destination was itself a symlink,
	// and if so what it pointed at.
	WasSymlink bool
	LinkTarget string
}

// Change is a single applied change-log entry, enough to undo it later.
type Change struct {
	Kind            ChangeKind
	Target          string
	Prior           PriorState
	Encrypted       bool
	EncryptionNonce string // hex-encoded, present only when Encrypted
}

// Request describes one file to materialize, the destination-facing
// half of a copy_files rule's "files" entry.
type Request struct {
	Source      string
	Destination string
	Strategy    Strategy
	Mode        *os.FileMode // nil means "use the default for this file"
	Encrypt     bool
	Required    bool
}

// Copier copies or symlinks files from a validated source root into a
// validated destination root. The two roots are the same unless built
// with NewCrossRoot — a copy_files rule typically reads a secret from a
// registered project directory and writes it into a session directory,
// two different roots that must each reject traversal/symlink escapes
// independently.
type Copier struct {
	srcValidator  *pathvalidator.Validator
	destValidator *pathvalidator.Validator
	masterKey     []byte // empty disables Encrypt support
}

// New builds a Copier whose source and destination both resolve under
// root. masterKey, if non-empty, is the user-held key used to derive
// per-session encryption keys; it is required only for requests with
// Encrypt=true.
func New(root string, masterKey []byte) (*Copier, error) {
	v, err := pathvalidator.New(root)
	if err != nil {
		return nil, err
	}
	return &Copier{srcValidator: v, destValidator: v, masterKey: masterKey}, nil
}

// NewCrossRoot builds a Copier that resolves sources under srcRoot and
// destinations under destRoot.
func NewCrossRoot(srcRoot, destRoot string, masterKey []byte) (*Copier, error) {
	sv, err := pathvalidator.New(srcRoot)
	if err != nil {
		return nil, err
	}
	dv, err := pathvalidator.New(destRoot)
	if err != nil {
		return nil, err
	}
	return &Copier{srcValidator: sv, destValidator: dv, masterKey: masterKey}, nil
}

// Result reports the outcome of a single Copy call.
type Result struct {
	Skipped bool
	Change  Change
}

// Copy materializes req.Source at req.Destination per req.Strategy,
// returning the change-log entry needed to roll it back. If the source
// is missing and req.Required is false, Result.Skipped is true and no
// error is returned; otherwise a missing source is a SourceMissingError
// equivalent (KindNotFound).
func (c *Copier) Copy(req Request) (Result, error) {
	if req.Strategy == "" {
		req.Strategy = StrategyCopy
	}
	dest := req.Destination
	if dest == "" {
		dest = req.Source
	}

	srcAbs, srcErr := c.srcValidator.Resolve(req.Source)
	if srcErr == nil {
		srcErr = pathvalidator.CheckReadable(srcAbs)
	}
	if srcErr != nil {
		if req.Required {
			return Result{}, sxnerr.Wrap(sxnerr.KindNotFound, srcErr, "source %q", req.Source)
		}
		return Result{Skipped: true}, nil
	}

	destAbs, err := c.destValidator.Resolve(dest)
	if err != nil {
		return Result{}, err
	}

	prior, err := capturePrior(destAbs)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(filepath.Dir(destAbs), dirMode); err != nil {
		return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "create parent directories for %q", destAbs)
	}

	switch req.Strategy {
	case StrategySymlink:
		return c.symlink(srcAbs, destAbs, prior)
	default:
		return c.copy(srcAbs, destAbs, req, prior)
	}
}

func (c *Copier) symlink(srcAbs, destAbs string, prior PriorState) (Result, error) {
	if prior.Existed {
		if err := os.Remove(destAbs); err != nil {
			return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "remove existing destination %q", destAbs)
		}
	}
	if err := os.Symlink(srcAbs, destAbs); err != nil {
		return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "symlink %q -> %q", destAbs, srcAbs)
	}
	return Result{Change: Change{Kind: ChangeSymlinkCreated, Target: destAbs, Prior: prior}}, nil
}

func (c *Copier) copy(srcAbs, destAbs string, req Request, prior PriorState) (Result, error) {
	data, err := os.ReadFile(srcAbs) //nolint:gosec // srcAbs validated by pathvalidator
	if err != nil {
		return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "read source %q", srcAbs)
	}

	mode := resolveMode(req.Mode, destAbs, data)

	change := Change{Kind: ChangeFileCopied, Target: destAbs, Prior: prior}
	if !prior.Existed {
		change.Kind = ChangeFileCreated
	}

	payload := data
	if req.Encrypt {
		if len(c.masterKey) == 0 {
			return Result{}, sxnerr.New(sxnerr.KindValidation, "encrypt requested for %q but no master key is configured", destAbs)
		}
		ciphertext, nonce, err := encrypt(c.masterKey, destAbs, data)
		if err != nil {
			return Result{}, err
		}
		payload = ciphertext
		change.Encrypted = true
		change.EncryptionNonce = hex.EncodeToString(nonce)
	}

	if err := os.WriteFile(destAbs, payload, mode); err != nil {
		return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "write destination %q", destAbs)
	}
	if err := os.Chmod(destAbs, mode); err != nil {
		return Result{}, sxnerr.Wrap(sxnerr.KindExecution, err, "chmod %q", destAbs)
	}

	return Result{Change: change}, nil
}

// resolveMode picks the mode for a copied file: the explicit request
// mode if given, else 0600 for secret-like files, else 0644.
func resolveMode(requested *os.FileMode, destAbs string, content []byte) os.FileMode {
	if requested != nil {
		return *requested
	}
	if secrets.Classify(destAbs, content) {
		return secretDefaultMode
	}
	return defaultMode
}

// CapturePrior records destAbs's state before it is overwritten, for
// callers outside this package that write a destination through their
// own logic (the template rule) but still want filecopier.Rollback's
// restore behavior.
func CapturePrior(destAbs string) (PriorState, error) {
	return capturePrior(destAbs)
}

// capturePrior records destAbs's state before it is overwritten, as
// enough information to undo the change.
func capturePrior(destAbs string) (PriorState, error) {
	info, err := os.Lstat(destAbs)
	if os.IsNotExist(err) {
		return PriorState{Existed: false}, nil
	}
	if err != nil {
		return PriorState{}, sxnerr.Wrap(sxnerr.KindExecution, err, "stat %q", destAbs)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(destAbs)
		if err != nil {
			return PriorState{}, sxnerr.Wrap(sxnerr.KindExecution, err, "readlink %q", destAbs)
		}
		return PriorState{Existed: true, WasSymlink: true, LinkTarget: target, Mode: info.Mode()}, nil
	}

	content, err := os.ReadFile(destAbs) //nolint:gosec // destAbs validated by pathvalidator
	if err != nil {
		return PriorState{}, sxnerr.Wrap(sxnerr.KindExecution, err, "read prior content %q", destAbs)
	}
	return PriorState{Existed: true, Content: content, Mode: info.Mode()}, nil
}

// Rollback restores destAbs (ch.Target) to the state recorded in
// ch.Prior, undoing whatever Copy did.
func Rollback(ch Change) error {
	if !ch.Prior.Existed {
		if err := os.Remove(ch.Target); err != nil && !os.IsNotExist(err) {
			return sxnerr.Wrap(sxnerr.KindExecution, err, "rollback: remove %q", ch.Target)
		}
		return nil
	}
	if ch.Prior.WasSymlink {
		_ = os.Remove(ch.Target)
		if err := os.Symlink(ch.Prior.LinkTarget, ch.Target); err != nil {
			return sxnerr.Wrap(sxnerr.KindExecution, err, "rollback: restore symlink %q", ch.Target)
		}
		return nil
	}
	if err := os.WriteFile(ch.Target, ch.Prior.Content, ch.Prior.Mode); err != nil {
		return sxnerr.Wrap(sxnerr.KindExecution, err, "rollback: restore content %q", ch.Target)
	}
	return os.Chmod(ch.Target, ch.Prior.Mode)
}

// encrypt seals data under a key derived from masterKey via HKDF-SHA256,
// using aad (the destination path) as salt/context and a fresh random
// nonce per call. See DESIGN.md for why this scheme was chosen.
func encrypt(masterKey []byte, aad string, data []byte) (ciphertext, nonce []byte, err error) {
	key, err := deriveKey(masterKey, aad)
	if err != nil {
		return nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, sxnerr.Wrap(sxnerr.KindExecution, err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, sxnerr.Wrap(sxnerr.KindExecution, err, "init gcm")
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, sxnerr.Wrap(sxnerr.KindExecution, err, "generate nonce")
	}
	ciphertext = gcm.Seal(nil, nonce, data, []byte(aad))
	return ciphertext, nonce, nil
}

// Decrypt reverses encrypt, given the nonce recorded in the change log.
func Decrypt(masterKey []byte, aad string, nonce, ciphertext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey, aad)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindExecution, err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindExecution, err, "init gcm")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindExecution, err, "decrypt %q", aad)
	}
	return plaintext, nil
}

func deriveKey(masterKey []byte, salt string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, []byte(salt), []byte("sxn-file-copier"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindExecution, err, "derive key")
	}
	return key, nil
}
