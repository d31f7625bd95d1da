package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/hivemind/pkg/team"
)

var timeNow = time.Now // injected for testability

// SaveOption tunes a single Save call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	backup bool
}

// WithBackup copies the previous artifact to a timestamped sibling
// before it is replaced. This is the snapshot hook for callers that
// cannot afford retention's data loss.
func WithBackup() SaveOption {
	return func(o *saveOptions) { o.backup = true }
}

// Load reads, parses, validates, and default-fills the team artifact at
// path. It returns the team together with the revision of the bytes it
// read. A missing artifact fails with ErrNotFound, malformed JSON with
// ErrParse, and an invalid team with team.ErrSchema; none of these fall
// back to an empty team.
func Load(path string) (*team.Team, Revision, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Revision{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, Revision{}, fmt.Errorf("store: read %s: %w", path, err)
	}

	var t team.Team
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, Revision{}, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	t.FillDefaults()
	if err := team.Validate(&t); err != nil {
		return nil, Revision{}, err
	}

	rev := Revision{Digest: digest(b), Size: int64(len(b))}
	if info, err := os.Stat(path); err == nil {
		rev.ModTime = info.ModTime()
	}
	return &t, rev, nil
}

// Save writes the team to path atomically: marshal, write a temporary
// file in the target directory, rename over the target. On any failure
// the previous artifact is left intact and the error wraps ErrWrite.
func Save(t *team.Team, path string, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal team: %v", ErrWrite, err)
	}
	b = append(b, '\n')

	if o.backup {
		if err := backup(path); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".team-*.json.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrWrite, err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: chmod temp file: %v", ErrWrite, err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", ErrWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename into place: %v", ErrWrite, err)
	}
	return nil
}

// Stat recomputes the revision of the artifact currently on disk. A
// missing artifact yields the zero revision without error, so callers
// can distinguish "never saved" from I/O failure.
func Stat(path string) (Revision, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Revision{}, nil
	}
	if err != nil {
		return Revision{}, fmt.Errorf("store: stat %s: %w", path, err)
	}
	rev := Revision{Digest: digest(b), Size: int64(len(b))}
	if info, err := os.Stat(path); err == nil {
		rev.ModTime = info.ModTime()
	}
	return rev, nil
}

// backup copies the current artifact to <stem>_backup_<ts><ext> next to
// it. A missing artifact is not an error; nothing to preserve yet.
func backup(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read for backup: %v", ErrWrite, err)
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	ts := timeNow().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s_backup_%s%s", stem, ts, ext)
	if err := os.WriteFile(backupPath, b, 0o600); err != nil {
		return fmt.Errorf("%w: write backup %s: %v", ErrWrite, backupPath, err)
	}
	slog.Debug("store: wrote artifact backup", "path", backupPath)
	return nil
}
