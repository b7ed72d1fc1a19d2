// Package builtin provides the tools every agent can use without
// registering them: a shell tool, and an agent-delegation tool that callers
// construct per sub-agent.
package builtin

import "github.com/youssefsiam38/agentloop/tool"

// NewRegistry returns a tool registry holding the shell tool configured by
// shell. A nil config uses defaults.
func NewRegistry(shell *ShellConfig) (*tool.Registry, error) {
	sh, err := NewShellTool(shell)
	if err != nil {
		return nil, err
	}
	r := tool.NewRegistry()
	if err := r.Register(sh); err != nil {
		return nil, err
	}
	return r, nil
}
