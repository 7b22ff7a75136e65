package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/l0nax/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/ssh"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/statistics"
)

type outputConfig struct {
	format     outputFormat
	delimChar  string
	outputFile string
}

type sshConfig struct {
	Host       string
	User       string
	Passwd     string
	PassPrompt bool
	KeyFile    string
	KeyPass    string
	KnownHosts []string
	Port       int
	Agent      bool
	Timeout    time.Duration
}

type inputConfig struct {
	target string

	sshConfig sshConfig

	sshConn *ssh.SSH
}

type config struct {
	minEntropy float64
	maxSize    int64
	chunkSize  int
	mode       entropy.Mode

	noOutliers bool
	rule       statistics.Rule

	inCfg  inputConfig
	outCfg outputConfig

	hashers []HashType

	goFast  bool
	verbose int

	log zerolog.Logger
}

// newLogger writes human readable logs to w, in colour only when w is a terminal.
func newLogger(w io.Writer, verbose int) zerolog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	level := zerolog.InfoLevel
	switch {
	case verbose >= 2:
		level = zerolog.TraceLevel
	case verbose == 1:
		level = zerolog.DebugLevel
	}

	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// bindViper layers flags, ENTROPYSTATS_* environment variables, and an optional config
// file, in that order of precedence.
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	v.SetEnvPrefix(constEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file (%s): %w", file, err)
		}
	}

	return nil
}

// splitList accepts both repeated flags and comma separated values from env or config.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func newConfig(cmd *cobra.Command, v *viper.Viper) (*config, error) {
	if err := bindViper(cmd, v); err != nil {
		return nil, err
	}

	cfg := &config{
		minEntropy: v.GetFloat64("min-entropy"),
		maxSize:    v.GetInt64("max-size"),
		chunkSize:  v.GetInt("chunk-size"),
		noOutliers: v.GetBool("no-outliers"),
		goFast:     v.GetBool("fast"),
		verbose:    v.GetInt("verbose"),
		inCfg: inputConfig{
			target: v.GetString("target"),
			sshConfig: sshConfig{
				Host:       v.GetString("ssh-host"),
				User:       v.GetString("ssh-user"),
				Passwd:     v.GetString("ssh-pass"),
				PassPrompt: v.GetBool("ssh-pass-prompt"),
				KeyFile:    v.GetString("ssh-key"),
				KeyPass:    v.GetString("ssh-key-pass"),
				KnownHosts: splitList(v.GetStringSlice("ssh-known-hosts")),
				Port:       v.GetInt("ssh-port"),
				Agent:      v.GetBool("ssh-agent"),
				Timeout:    v.GetDuration("ssh-timeout"),
			},
		},
		outCfg: outputConfig{
			delimChar:  v.GetString("delim"),
			outputFile: v.GetString("output"),
		},
	}

	cfg.log = newLogger(cmd.ErrOrStderr(), cfg.verbose)

	var err error

	if cfg.outCfg.format, err = parseFormat(v.GetString("format")); err != nil {
		return nil, usageError("%s", err)
	}
	if cfg.mode, err = entropy.ParseMode(v.GetString("entropy-mode")); err != nil {
		return nil, usageError("%s", err)
	}
	if cfg.rule, err = statistics.ParseRule(v.GetString("outlier-rule")); err != nil {
		return nil, usageError("%s", err)
	}
	if cfg.hashers, err = ParseHashTypes(splitList(v.GetStringSlice("hash"))); err != nil {
		return nil, usageError("%s", err)
	}

	if err = cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.log.GetLevel() <= zerolog.DebugLevel {
		cfg.log.Debug().Msg("effective configuration:\n" + spew.Sdump(cfg.view()))
	}

	return cfg, nil
}

func (cfg *config) validate() error {
	switch {
	case cfg.minEntropy > entropy.MaxEntropy:
		return usageError("max entropy value is 8.0")
	case cfg.minEntropy < 0:
		return usageError("min entropy value is 0.0")
	case cfg.inCfg.target == "":
		return usageError("--target is required")
	case cfg.maxSize <= 0:
		return usageError("--max-size must be positive")
	case cfg.chunkSize <= 0:
		return usageError("--chunk-size must be positive")
	case cfg.outCfg.delimChar == "":
		return usageError("--delim must not be empty")
	default:
		// proceed
	}

	sc := cfg.inCfg.sshConfig

	if sc.Host != "" && sc.User == "" {
		return usageError("ssh-host requires ssh-user")
	}

	if sc.User != "" && sc.Host == "" {
		return usageError("ssh-user requires ssh-host")
	}

	if sc.Host != "" && !sc.Agent && sc.KeyFile == "" && sc.Passwd == "" && !sc.PassPrompt {
		return usageError("ssh mode requires ssh-key, ssh-pass, ssh-pass-prompt, or ssh-agent")
	}

	return nil
}

// configView is the effective configuration with secrets masked, for debug output.
type configView struct {
	Target     string
	MinEntropy float64
	MaxSize    int64
	ChunkSize  int
	Mode       string
	Rule       string
	NoOutliers bool
	Format     string
	Output     string
	Hashers    []string
	Fast       bool
	SSH        sshConfig
}

func (cfg *config) view() configView {
	sc := cfg.inCfg.sshConfig
	if sc.Passwd != "" {
		sc.Passwd = "********"
	}
	if sc.KeyPass != "" {
		sc.KeyPass = "********"
	}
	hashers := make([]string, 0, len(cfg.hashers))
	for _, ht := range cfg.hashers {
		hashers = append(hashers, ht.String())
	}
	return configView{
		Target:     cfg.inCfg.target,
		MinEntropy: cfg.minEntropy,
		MaxSize:    cfg.maxSize,
		ChunkSize:  cfg.chunkSize,
		Mode:       cfg.mode.String(),
		Rule:       cfg.rule.String(),
		NoOutliers: cfg.noOutliers,
		Format:     cfg.outCfg.format.String(),
		Output:     cfg.outCfg.outputFile,
		Hashers:    hashers,
		Fast:       cfg.goFast,
		SSH:        sc,
	}
}

func (cfg *config) engine() *entropy.Engine {
	return entropy.NewEngine().
		WithMaxSize(cfg.maxSize).
		WithChunkSize(cfg.chunkSize).
		WithMode(cfg.mode)
}

func promptPassword(user, host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("ssh-pass-prompt requires an interactive terminal")
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s@%s's password: ", user, host)
	pass, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	return string(pass), nil
}

func (cfg *config) sshInit() error {
	sc := &cfg.inCfg.sshConfig

	cfg.inCfg.sshConn = ssh.NewSSH(sc.Host, sc.User).
		WithPort(sc.Port).WithTimeout(sc.Timeout).
		WithVersion("SSH-2.0-EntropyStats_" + constVersion).
		WithLogger(cfg.log).WithVerbose(cfg.verbose)

	if len(sc.KnownHosts) > 0 {
		cfg.inCfg.sshConn = cfg.inCfg.sshConn.WithKnownHosts(sc.KnownHosts...)
	}

	if sc.Agent {
		cfg.inCfg.sshConn = cfg.inCfg.sshConn.WithAgent()
	}

	if sc.KeyFile != "" {
		switch {
		case sc.KeyPass == "":
			cfg.inCfg.sshConn = cfg.inCfg.sshConn.WithKeyFile(sc.KeyFile)
		default:
			cfg.inCfg.sshConn = cfg.inCfg.sshConn.WithEncryptedKeyFile(sc.KeyFile, sc.KeyPass)
		}
	}

	if sc.PassPrompt && sc.Passwd == "" {
		pass, err := promptPassword(sc.User, sc.Host)
		if err != nil {
			return err
		}
		sc.Passwd = pass
	}

	if sc.Passwd != "" {
		cfg.inCfg.sshConn = cfg.inCfg.sshConn.WithPassword(sc.Passwd)
	}

	if err := cfg.inCfg.sshConn.Connect(); err != nil {
		return fmt.Errorf("error connecting to SSH host (%s): %w", sc.Host, err)
	}

	cfg.log.Debug().Str("conn", cfg.inCfg.sshConn.String()).Msg("connected")

	return nil
}

// close releases the SSH connection, if any.
func (cfg *config) close() {
	if cfg.inCfg.sshConn == nil || cfg.inCfg.sshConn.Closed() {
		return
	}
	if err := cfg.inCfg.sshConn.Close(); err != nil {
		cfg.log.Warn().Err(err).Msg("error closing SSH connection")
	}
}
