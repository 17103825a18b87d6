package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing a private key
	// written by gravityctl keygen.
	DefaultKeyfile = "priv_key"

	// DefaultJournalFile is the default name of the folder containing the
	// Badger database where fuzz runs are recorded.
	DefaultJournalFile = "journal"

	// DefaultClusterFile is the default name of the cluster topology file. It
	// is resolved relative to the working directory because it is shared with
	// the deployment scripts, which live next to it.
	DefaultClusterFile = "cluster.toml"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultCLIPath           = "gravity_cli"
	DefaultNodeBin           = "gravity_node"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultConvergeTimeout   = 60 * time.Second
	DefaultConvergeInterval  = 2 * time.Second
	DefaultProbeTimeout      = 2 * time.Second
	DefaultRPCWait           = 30 * time.Second
	DefaultStopGrace         = 1 * time.Second
	DefaultRestartGap        = 2 * time.Second
	DefaultBlockWait         = 30 * time.Second
	DefaultPollInterval      = 1 * time.Second
	DefaultBlockDelta        = 1
	DefaultReconcileInterval = 10 * time.Second
	DefaultFuzzDuration      = 1800 * time.Second
	DefaultHeightInterval    = 10 * time.Second
	DefaultMaxHeightLag      = 100
	DefaultStakeAmount       = "10001.0"
)

// Config contains all the configuration properties of the harness.
type Config struct {
	// DataDir is the top-level directory containing harness configuration and
	// data. It is not the cluster's base directory, which comes from the
	// cluster file.
	DataDir string `mapstructure:"datadir"`

	// ClusterFile is the path of the cluster topology file (cluster.toml). It
	// defines the base directory, the nodes with their ports and roles, and
	// the genesis parameters.
	ClusterFile string `mapstructure:"cluster"`

	// CLIPath is the path of the external admin binary used to submit
	// validator join/leave/list commands. A bare name is resolved via PATH.
	CLIPath string `mapstructure:"cli"`

	// NodeBin is the process name of the chain node binary. It is only used
	// to hunt down stray processes during a purge.
	NodeBin string `mapstructure:"node-bin"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, routes info and above to per-level files in that
	// directory, in addition to the terminal output.
	LogDir string `mapstructure:"log-dir"`

	// NoService disables the HTTP stats service during fuzz runs.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP stats service
	// exposed while a fuzz run is in flight.
	ServiceAddr string `mapstructure:"service-listen"`

	// ConvergeTimeout is the deadline of cluster convergence operations. It
	// is checked at the top of each iteration, so an in-flight action is
	// never cut short by it.
	ConvergeTimeout time.Duration `mapstructure:"converge-timeout"`

	// ConvergeInterval is the pause between convergence iterations.
	ConvergeInterval time.Duration `mapstructure:"converge-interval"`

	// ProbeTimeout bounds a single RPC or HTTP status probe.
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`

	// RPCWait is how long a freshly started node gets to open its RPC
	// endpoint before the start is declared failed.
	RPCWait time.Duration `mapstructure:"rpc-wait"`

	// StopGrace is the pause between running the stop script and re-checking
	// that the process is gone.
	StopGrace time.Duration `mapstructure:"stop-grace"`

	// RestartGap is the pause between the stop and start halves of a restart.
	RestartGap time.Duration `mapstructure:"restart-gap"`

	// BlockWait is the deadline for observing block progress on a node.
	BlockWait time.Duration `mapstructure:"block-wait"`

	// PollInterval is the cadence of RPC availability and block progress
	// polls inside a wait.
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// BlockDelta is the minimum height increase that counts as progress.
	BlockDelta uint64 `mapstructure:"block-delta"`

	// ReconcileInterval is the cycle period of the validator-set fuzz loop.
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`

	// FuzzDuration bounds a fuzz run. Zero means run until interrupted.
	FuzzDuration time.Duration `mapstructure:"duration"`

	// Seed seeds the fuzz run's random choices. Zero picks a seed from the
	// clock; the chosen seed is always logged so a run can be replayed.
	Seed int64 `mapstructure:"seed"`

	// HeightInterval is the cycle period of the height monitor that runs
	// alongside the fuzz loop.
	HeightInterval time.Duration `mapstructure:"height-interval"`

	// MaxHeightLag is how far behind the highest observed block height a node
	// may fall before the run is aborted.
	MaxHeightLag uint64 `mapstructure:"max-height-lag"`

	// StakeAmount is the stake submitted with validator join commands.
	StakeAmount string `mapstructure:"stake-amount"`

	// JournalDir is the directory of the badger database recording fuzz runs.
	JournalDir string `mapstructure:"journal"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		ClusterFile:       DefaultClusterFile,
		CLIPath:           DefaultCLIPath,
		NodeBin:           DefaultNodeBin,
		LogLevel:          DefaultLogLevel,
		ServiceAddr:       DefaultServiceAddr,
		ConvergeTimeout:   DefaultConvergeTimeout,
		ConvergeInterval:  DefaultConvergeInterval,
		ProbeTimeout:      DefaultProbeTimeout,
		RPCWait:           DefaultRPCWait,
		StopGrace:         DefaultStopGrace,
		RestartGap:        DefaultRestartGap,
		BlockWait:         DefaultBlockWait,
		PollInterval:      DefaultPollInterval,
		BlockDelta:        DefaultBlockDelta,
		ReconcileInterval: DefaultReconcileInterval,
		FuzzDuration:      DefaultFuzzDuration,
		HeightInterval:    DefaultHeightInterval,
		MaxHeightLag:      DefaultMaxHeightLag,
		StakeAmount:       DefaultStakeAmount,
		JournalDir:        DefaultJournalDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. Timings are tightened so convergence tests run
// in milliseconds rather than minutes.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, logrus.DebugLevel)
	config.ConvergeTimeout = 3 * time.Second
	config.ConvergeInterval = 10 * time.Millisecond
	config.ProbeTimeout = 500 * time.Millisecond
	config.RPCWait = 2 * time.Second
	config.StopGrace = 10 * time.Millisecond
	config.RestartGap = 10 * time.Millisecond
	config.BlockWait = 2 * time.Second
	config.PollInterval = 10 * time.Millisecond
	config.ReconcileInterval = 10 * time.Millisecond
	config.HeightInterval = 10 * time.Millisecond
	return config
}

// SetDataDir sets the top-level harness directory, and updates the journal
// directory if it is currently set to the default value. If the journal
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.JournalDir == DefaultJournalDir() {
		c.JournalDir = filepath.Join(dataDir, DefaultJournalFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "gravityctl".
// When LogDir is set, info and above are additionally routed to per-level
// files in that directory.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  filepath.Join(c.LogDir, "info.log"),
					logrus.WarnLevel:  filepath.Join(c.LogDir, "warn.log"),
					logrus.ErrorLevel: filepath.Join(c.LogDir, "error.log"),
					logrus.FatalLevel: filepath.Join(c.LogDir, "fatal.log"),
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "gravityctl")
}

// DefaultJournalDir returns the default path for the badger journal files.
func DefaultJournalDir() string {
	return filepath.Join(DefaultDataDir(), DefaultJournalFile)
}

// DefaultDataDir returns the default directory name for top-level harness
// data based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Gravity")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Gravity")
		} else {
			return filepath.Join(home, ".gravity")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
