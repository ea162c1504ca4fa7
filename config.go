package netlib

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Duration is a time.Duration that decodes from strings such as "500ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the file form of the reactor options.
//
//	address          = "127.0.0.1:12345"
//	log_level        = "debug"
//	read_buffer_size = 1024
//	max_message_size = 8192
//	buffer_limit     = 65536
//	header_width     = 2
//	poll_timeout     = "500ms"
//	write_timeout    = "5s"
//	backlog          = 10
//
//	[default_target]
//	size      = 4
//	permanent = true
type Config struct {
	Address        string   `toml:"address"`
	LogLevel       string   `toml:"log_level"`
	ReadBufferSize int      `toml:"read_buffer_size"`
	MaxMessageSize int      `toml:"max_message_size"`
	BufferCeiling  int      `toml:"buffer_ceiling"`
	BufferLimit    int      `toml:"buffer_limit"`
	HeaderWidth    int      `toml:"header_width"`
	PollTimeout    Duration `toml:"poll_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	Backlog        int      `toml:"backlog"`
	DefaultTarget  struct {
		Size      int  `toml:"size"`
		Permanent bool `toml:"permanent"`
	} `toml:"default_target"`
}

// LoadConfig reads a TOML file. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// Options converts the config into reactor options. Zero values keep the defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.LogLevel != "" {
		logger, err := NewLogger(os.Stderr, c.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, LoggerOption(logger))
	}

	opts = append(opts,
		ReadBufferSizeOption(c.ReadBufferSize),
		MessageMaxSize(c.MaxMessageSize),
		BufferCeilingOption(c.BufferCeiling),
		BufferLimitOption(c.BufferLimit),
		FramingOption(LengthPrefixed(c.HeaderWidth)),
		PollTimeoutOption(c.PollTimeout.Duration),
		WriteTimeoutOption(c.WriteTimeout.Duration),
		BacklogOption(c.Backlog),
		DefaultTargetOption(c.DefaultTarget.Size, c.DefaultTarget.Permanent),
	)

	var probe options
	for _, o := range opts {
		o(&probe)
	}
	if err := checkOptions(&probe); err != nil {
		return nil, err
	}

	return opts, nil
}
