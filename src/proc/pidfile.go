// Package proc handles the process side of a node: the PID file, the
// lifecycle scripts, and hunting down stray processes.
package proc

import (
	"context"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/process"
)

// DefaultPIDFile is the name of the PID file a node's start script writes
// into the node's data directory.
const DefaultPIDFile = "node.pid"

// PIDFile reads the PID a start script left behind. A missing file simply
// means no process was recorded, which is the normal situation for a stopped
// node.
type PIDFile struct {
	path string
}

// NewPIDFile ...
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the location of the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Read returns the recorded PID. The second return value reports whether the
// file exists at all. A file that exists but does not parse is an error,
// because it means the start script misbehaved.
func (p *PIDFile) Read() (int32, bool, error) {
	buf, err := ioutil.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	pid, err := strconv.ParseInt(strings.TrimSpace(string(buf)), 10, 32)
	if err != nil {
		return 0, true, err
	}

	return int32(pid), true, nil
}

// Alive reports whether the recorded process is still running. A missing PID
// file reports false with no error.
func (p *PIDFile) Alive(ctx context.Context) (bool, error) {
	pid, ok, err := p.Read()
	if err != nil || !ok {
		return false, err
	}

	return process.PidExistsWithContext(ctx, pid)
}
