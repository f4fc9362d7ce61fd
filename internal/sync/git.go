package sync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// GitDestination commits the export to a file in a local clone and pushes
// it. Unchanged exports produce no commit.
type GitDestination struct {
	repo   string
	file   string
	branch string
	logger *slog.Logger
}

// NewGitDestination returns a destination writing file (relative to repo)
// on branch. repo must be an existing clone with an "origin" remote.
func NewGitDestination(repo, file, branch string) *GitDestination {
	if branch == "" {
		branch = "main"
	}
	return &GitDestination{repo: repo, file: file, branch: branch, logger: slog.Default()}
}

func (d *GitDestination) String() string {
	return fmt.Sprintf("git:%s/%s@%s", d.repo, d.file, d.branch)
}

// Write replaces the export file and pushes a commit describing it.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote branch may not exist yet.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	if err := d.git(ctx, "add", d.file); err != nil {
		return err
	}
	if d.git(ctx, "diff", "--cached", "--quiet") == nil {
		d.logger.Debug("git export unchanged", "file", d.file)
		return nil
	}
	if err := d.git(ctx, "commit", "-m", commitMessage(data)); err != nil {
		return err
	}
	return d.git(ctx, "push", "origin", d.branch)
}

// commitMessage summarizes an export from its header line.
func commitMessage(data []byte) string {
	var h header
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	if json.Unmarshal(line, &h) != nil || h.Type != "header" {
		return "shingolive: update event log export"
	}
	return fmt.Sprintf("shingolive: export %d events through #%d", h.EventCount, h.LastEventID)
}

func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", d.repo}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return nil
}
