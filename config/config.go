// Package config holds the runtime settings of the emulator. Settings come
// from built-in defaults, then .env files, then NETEMU_* environment
// variables, each overriding the previous.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/sarchlab/netemu/packet"
)

// Prefix is the prefix of every environment variable read by Load.
const Prefix = "NETEMU_"

// Config is the set of runtime settings.
type Config struct {
	TickInterval      time.Duration
	PingTimeoutTicks  int
	TableCapacity     int
	ChunkSize         int
	PipeCapacity      int
	RelayPollInterval time.Duration
	DialMaxInterval   time.Duration
	LogLevel          string
	OSPipes           bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		TickInterval:      10 * time.Millisecond,
		PingTimeoutTicks:  10,
		TableCapacity:     100,
		ChunkSize:         packet.PayloadMax,
		PipeCapacity:      64 * 1024,
		RelayPollInterval: 5 * time.Millisecond,
		DialMaxInterval:   2 * time.Second,
		LogLevel:          "info",
	}
}

// Load builds a configuration. Without arguments it reads ./.env if it
// exists; named files must exist.
func Load(envFiles ...string) (Config, error) {
	file, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(Prefix + key); ok {
			return v, true
		}

		v, ok := file[Prefix+key]

		return v, ok
	}

	c := Default()
	p := parser{lookup: lookup}

	p.duration("TICK_INTERVAL", &c.TickInterval)
	p.int("PING_TIMEOUT_TICKS", &c.PingTimeoutTicks)
	p.int("TABLE_CAPACITY", &c.TableCapacity)
	p.int("CHUNK_SIZE", &c.ChunkSize)
	p.int("PIPE_CAPACITY", &c.PipeCapacity)
	p.duration("RELAY_POLL_INTERVAL", &c.RelayPollInterval)
	p.duration("DIAL_MAX_INTERVAL", &c.DialMaxInterval)
	p.string("LOG_LEVEL", &c.LogLevel)
	p.bool("OS_PIPES", &c.OSPipes)

	if p.err != nil {
		return Config{}, p.err
	}

	return c, c.Validate()
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) > 0 {
		m, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}

		return m, nil
	}

	m, err := godotenv.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	return m, nil
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return fmt.Errorf("config: tick interval must be positive")
	case c.PingTimeoutTicks <= 0:
		return fmt.Errorf("config: ping timeout must be positive")
	case c.TableCapacity <= 0:
		return fmt.Errorf("config: table capacity must be positive")
	case c.ChunkSize <= 0 || c.ChunkSize > packet.PayloadMax:
		return fmt.Errorf("config: chunk size must be in 1..%d", packet.PayloadMax)
	case c.PipeCapacity < packet.FrameMax:
		return fmt.Errorf("config: pipe capacity must hold a frame of %d bytes",
			packet.FrameMax)
	case c.RelayPollInterval <= 0 || c.DialMaxInterval <= 0:
		return fmt.Errorf("config: relay intervals must be positive")
	}

	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// ApplyLogLevel sets the level of every netemu logger.
func (c Config) ApplyLogLevel() error {
	return logging.SetLogLevelRegex("netemu/.*", c.LogLevel)
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s%s=%q: %w", Prefix, key, value, err)
	}
}

func (p *parser) string(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = n
}

func (p *parser) bool(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = b
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return
	}

	*dst = d
}
