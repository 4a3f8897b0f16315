//go:build !windows

package launcher

import (
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// buildCommand 按shell规则拆分参数串
func buildCommand(exe, args string) (*exec.Cmd, error) {
	argv, err := shellwords.Parse(args)
	if err != nil {
		return nil, err
	}
	return exec.Command(exe, argv...), nil
}
