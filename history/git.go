package history

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/perfgo/webgrid/model"
)

// GitInfo returns the commit and branch of the working directory.
func GitInfo() (*model.Git, error) {
	// Get current commit hash
	cmd := exec.Command("git", "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get git commit: %w", err)
	}
	commit := strings.TrimSpace(string(output))

	// Get current branch
	cmd = exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	output, err = cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get git branch: %w", err)
	}

	return &model.Git{
		Commit: commit,
		Branch: strings.TrimSpace(string(output)),
	}, nil
}
