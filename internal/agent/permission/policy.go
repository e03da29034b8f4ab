// Package permission implements the keyword-based task permission gate
// applied before a task reaches an agent backend.
package permission

import (
	"strings"

	"github.com/agenttool/agenttool/internal/session/models"
)

// RejectionMessage is the error recorded on tasks blocked by the gate.
const RejectionMessage = "Task not allowed by current permissions"

// rule blocks a task when any keyword matches and the grant is absent.
type rule struct {
	keywords []string
	granted  func(models.AgentPermissions) bool
}

// Policy validates task descriptions against an agent's permission grants.
// The match is a case-insensitive substring check.
type Policy struct {
	rules          []rule
	requireNetwork bool
}

// Allows reports whether the task passes the gate under the given grants.
func (p *Policy) Allows(task string, perms models.AgentPermissions) bool {
	if p.requireNetwork && !perms.NetworkAccess {
		return false
	}

	lower := strings.ToLower(task)
	for _, r := range p.rules {
		if r.granted(perms) {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return false
			}
		}
	}
	return true
}

// ClaudePolicy returns the gate applied to claude_code tasks.
func ClaudePolicy() *Policy {
	return &Policy{
		rules: []rule{
			{keywords: []string{"read", "open"}, granted: func(p models.AgentPermissions) bool { return p.FileRead }},
			{keywords: []string{"write", "save", "create"}, granted: func(p models.AgentPermissions) bool { return p.FileWrite }},
			{keywords: []string{"fetch", "download", "http"}, granted: func(p models.AgentPermissions) bool { return p.NetworkAccess }},
			{keywords: []string{"run", "execute", "spawn"}, granted: func(p models.AgentPermissions) bool { return p.ProcessSpawn }},
		},
	}
}

// GeminiPolicy returns the gate applied to gemini_cli tasks. Gemini needs
// network access for every operation, so the gate rejects all tasks when
// that grant is missing.
func GeminiPolicy() *Policy {
	return &Policy{
		requireNetwork: true,
		rules: []rule{
			{keywords: []string{"read", "open", "analyze file"}, granted: func(p models.AgentPermissions) bool { return p.FileRead }},
			{keywords: []string{"write", "save", "create file"}, granted: func(p models.AgentPermissions) bool { return p.FileWrite }},
			{keywords: []string{"execute command", "run script"}, granted: func(p models.AgentPermissions) bool { return p.ProcessSpawn }},
		},
	}
}
