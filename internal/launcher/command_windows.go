//go:build windows

package launcher

import (
	"os/exec"
	"strings"
	"syscall"
)

// buildCommand Windows下原样传递命令行，路径中的反斜杠不做转义处理
func buildCommand(exe, args string) (*exec.Cmd, error) {
	cmd := exec.Command(exe)
	line := `"` + exe + `"`
	if strings.TrimSpace(args) != "" {
		line += " " + args
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: line}
	return cmd, nil
}
