package proc

import (
	"context"

	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
)

// KillByName force-kills every process whose executable name matches. It is
// the purge of last resort for node processes that lost their PID files, and
// returns how many processes it killed. Errors on individual processes are
// logged and skipped, because processes come and go while we scan.
func KillByName(ctx context.Context, name string, logger *logrus.Entry) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}

		if err := p.KillWithContext(ctx); err != nil {
			logger.WithField("pid", p.Pid).WithError(err).Warn("Failed to kill process")
			continue
		}

		logger.WithFields(logrus.Fields{
			"pid":  p.Pid,
			"name": name,
		}).Info("Killed stray process")

		killed++
	}

	return killed, nil
}
