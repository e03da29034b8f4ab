package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// MetadataFile is the sidecar written into every session workspace. It is
// how orphaned workspaces are recognized during cleanup.
const MetadataFile = ".agenttool-session.json"

const toolVersion = "0.1.0"

// Metadata records which session a workspace belongs to.
type Metadata struct {
	SessionID  string `json:"session_id"`
	BranchName string `json:"branch_name"`
	CreatedAt  string `json:"created_at"`
	Version    string `json:"agent_tool_version"`
}

func writeMetadata(workspacePath, sessionID, branchName string) error {
	meta := Metadata{
		SessionID:  sessionID,
		BranchName: branchName,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Version:    toolVersion,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workspacePath, MetadataFile), data, 0644)
}

// readMetadata loads the sidecar from a workspace. Unreadable or
// unparsable sidecars are reported as errors so callers can leave the
// workspace untouched.
func readMetadata(workspacePath string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(workspacePath, MetadataFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
