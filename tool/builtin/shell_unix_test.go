//go:build unix

package builtin

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestProcessGroup_EmptyAfterLeaderExits(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		wantAlive bool
	}{
		{name: "no children", command: "exit 0", wantAlive: false},
		{name: "background child", command: "sleep 30 & exit 0", wantAlive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command("/bin/sh", "-c", tt.command)
			killed := configureProcessGroup(cmd)
			if err := cmd.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			pid := cmd.Process.Pid
			if err := cmd.Wait(); err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if killed() {
				t.Error("group reported killed without cancellation")
			}

			if got := groupAlive(pid); got != tt.wantAlive {
				t.Errorf("groupAlive = %v, want %v", got, tt.wantAlive)
			}
			killProcessGroup(pid, killed())
		})
	}
}

func TestProcessGroup_CancelMarksKilled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", "sleep 30")
	killed := configureProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := cmd.Wait(); err == nil {
		t.Fatal("expected the command to be killed")
	}
	if !killed() {
		t.Error("expected cancellation to mark the group killed")
	}
}
