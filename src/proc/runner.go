package proc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/sirupsen/logrus"
)

// stderrTail is how many trailing stderr lines a failed script reports.
const stderrTail = 5

// Runner executes lifecycle scripts and streams their output into the log.
type Runner struct {
	logger *logrus.Entry
}

// NewRunner ...
func NewRunner(logger *logrus.Entry) *Runner {
	return &Runner{logger: logger}
}

// Run executes a shell script with the given working directory and arguments,
// in its own session so that signals aimed at the harness do not reach it.
// Stdout and stderr are streamed line by line into the log. A non-zero exit
// returns an ActionFailed error carrying the tail of stderr.
func (r *Runner) Run(ctx context.Context, script string, dir string, args ...string) error {
	if _, err := os.Stat(script); err != nil {
		return common.NewOpErrorf("RunScript", common.UsageError, "script not found: %s", script)
	}

	name := filepath.Base(script)
	logger := r.logger.WithField("script", name)

	cmd := exec.CommandContext(ctx, "bash", append([]string{script}, args...)...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return common.NewOpErrorf("RunScript", common.ActionFailed, "%s: %v", name, err)
	}

	logger.WithField("args", strings.Join(args, " ")).Debug("Running script")

	var wg sync.WaitGroup
	var mu sync.Mutex
	tail := []string{}

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			logger.Info(scanner.Text())
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Warn(line)

			mu.Lock()
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		detail := fmt.Sprintf("%s: %v", name, err)

		mu.Lock()
		if len(tail) > 0 {
			detail = fmt.Sprintf("%s: %s", detail, strings.Join(tail, " | "))
		}
		mu.Unlock()

		return common.NewOpError("RunScript", common.ActionFailed, detail)
	}

	logger.Debug("Script completed")

	return nil
}
