package launcher

import (
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"go.uber.org/zap"
)

// ExitFunc 进程退出回调，在独立goroutine中调用
//
// 正常退出时err为nil；被取消时cancelled为true。
type ExitFunc func(exitCode int, cancelled bool, err error)

// Process 正在运行的引擎进程
type Process interface {
	Pid() int
	// Cancel 终止进程，重复调用无副作用
	Cancel() error
	// Done 进程退出后关闭
	Done() <-chan struct{}
}

// Launcher 启动外部引擎程序
type Launcher interface {
	// Start 非阻塞启动进程，退出时回调onExit
	Start(exe, args string, onExit ExitFunc) (Process, error)
	// Launch 启动交互式程序，不关心退出
	Launch(exe, args string) error
}

// Exec 基于os/exec的启动器
type Exec struct {
	log *zap.Logger
}

// New 创建启动器
func New() *Exec {
	return &Exec{log: logger.WithModule("launcher")}
}

// Start 启动进程，工作目录为可执行文件所在目录
func (l *Exec) Start(exe, args string, onExit ExitFunc) (Process, error) {
	cmd, err := command(exe, args)
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrProcessStart, "start %s", exe)
	}

	p := &process{cmd: cmd, done: make(chan struct{}), started: time.Now()}
	l.log.Info("引擎进程已启动",
		zap.String("exe", exe),
		zap.String("args", args),
		zap.Int("pid", p.Pid()),
	)

	go p.wait(l.log, onExit)
	return p, nil
}

// Launch 启动后立即返回，进程在后台回收
func (l *Exec) Launch(exe, args string) error {
	cmd, err := command(exe, args)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.ErrProcessStart, "launch %s", exe)
	}
	l.log.Info("已启动交互程序", zap.String("exe", exe), zap.String("args", args), zap.Int("pid", cmd.Process.Pid))
	go func() { _ = cmd.Wait() }()
	return nil
}

func command(exe, args string) (*exec.Cmd, error) {
	if exe == "" {
		return nil, errors.New(errors.ErrProcessStart, "no executable configured")
	}
	cmd, err := buildCommand(exe, args)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrProcessStart, "parse arguments %q", args)
	}
	cmd.Dir = filepath.Dir(exe)
	return cmd, nil
}

type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	started time.Time

	mu        sync.Mutex
	cancelled bool
}

func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Cancel() error {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return nil
	}
	p.cancelled = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}
		return errors.Wrap(err, errors.ErrProcessFailed, "kill process")
	}
	return nil
}

func (p *process) wait(log *zap.Logger, onExit ExitFunc) {
	err := p.cmd.Wait()
	close(p.done)

	p.mu.Lock()
	cancelled := p.cancelled
	p.mu.Unlock()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		} else {
			code = -1
		}
	}

	log.Info("引擎进程已退出",
		zap.Int("pid", p.Pid()),
		zap.Int("exit_code", code),
		zap.Bool("cancelled", cancelled),
		zap.Duration("elapsed", time.Since(p.started)),
		zap.Error(err),
	)

	if onExit != nil {
		onExit(code, cancelled, err)
	}
}
