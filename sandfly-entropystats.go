// Sandfly Security Linux Entropy Statistics Utility
package main

/*
This utility will help find packed or encrypted files on a Linux system by calculating the entropy to see how
random they are. Packed or encrypted malware often appears to be a very random executable file and this utility
can help identify potential intrusions.

You can list the entropy of every file under a path, or summarize the entropy distribution of a path with
descriptive statistics and flag the files whose entropy stands out from the rest. Remote hosts can be scanned
agentlessly over SSH.

Sandfly Security produces an agentless endpoint detection and incident response platform (EDR) for Linux. You can
find out more about how it works at: https://www.sandflysecurity.com

MIT License

Copyright (c) 2019-2024 Sandfly Security Ltd.
https://www.sandflysecurity.com

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated
documentation files (the "Software"), to deal in the Software without restriction, including without limitation the
rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of
the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO
THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.

Version: 1.0.0
Author: @SandflySecurity
*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/ssh"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/statistics"
)

const (
	// constVersion Version
	constVersion = "1.0.0"
	// constDelimeterDefault default delimiter for CSV output.
	constDelimeterDefault = ","
	// constFloatPrecision decimal places for entropy and statistics in table and CSV output.
	constFloatPrecision = 3
	// constEnvPrefix prefix for environment variable overrides of any flag.
	constEnvPrefix = "ENTROPYSTATS"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "sandfly-entropystats",
		Short: "Shannon entropy scanning and statistics for files on Linux",
		Long: "sandfly-entropystats calculates the Shannon entropy of files to find packed, encrypted,\n" +
			"or compressed content, and summarizes the entropy of a file set to flag outliers.",
		Version:       constVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("sandfly-entropystats Version {{.Version}}\n" +
		"Copyright (c) 2019-2024 Sandfly Security - www.sandflysecurity.com\n")

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml, or json) providing defaults for any flag")
	pf.CountP("verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	pf.StringP("target", "t", "", "file or directory to analyze")
	pf.StringP("format", "f", formatTable.String(), "output format: table, json, or csv")
	pf.StringP("output", "o", "", "output file to write results to (default stdout)")
	pf.String("delim", constDelimeterDefault, "delimiter for CSV output")
	pf.Bool("fast", false, "use a worker pool for concurrent file processing")
	pf.String("entropy-mode", entropy.ModeChunked.String(), "how chunk entropies are combined: chunked or global")
	pf.Int64("max-size", entropy.DefaultMaxFileSize, "largest file size in bytes that will be scanned")
	pf.Int("chunk-size", entropy.DefaultChunkSize, "bytes per entropy histogram chunk")

	addSSHFlags(pf)

	root.AddCommand(newScanCmd(v), newStatsCmd(v))

	return root
}

func addSSHFlags(fs *pflag.FlagSet) {
	fs.String("ssh-host", "", "SSH host to scan instead of the local filesystem")
	fs.String("ssh-user", "", "SSH user name")
	fs.Int("ssh-port", ssh.DefaultSSHPort, "SSH port")
	fs.String("ssh-pass", "", "SSH password")
	fs.Bool("ssh-pass-prompt", false, "prompt for the SSH password on the terminal")
	fs.String("ssh-key", "", "SSH private key file")
	fs.String("ssh-key-pass", "", "passphrase for an encrypted SSH private key file")
	fs.Bool("ssh-agent", false, "use SSH agent")
	fs.StringSlice("ssh-known-hosts", nil, "known_hosts file(s) used to verify the SSH host key")
	fs.Duration("ssh-timeout", ssh.DefaultTimeout, "SSH connection timeout")
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the entropy of every file under a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := newConfig(cmd, v)
			if err != nil {
				return err
			}
			defer cfg.close()
			return cfg.runScan(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().Float64P("min-entropy", "m", 0, "show any file with entropy greater than or equal to this value (0.0 - 8.0)")
	cmd.Flags().StringSlice("hash", nil, "checksums to calculate for each file: md5, sha1, sha256, sha512")

	return cmd
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the entropy distribution of a target and flag outliers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := newConfig(cmd, v)
			if err != nil {
				return err
			}
			defer cfg.close()
			return cfg.runStats(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolP("no-outliers", "n", false, "don't calculate or show outliers")
	cmd.Flags().String("outlier-rule", statistics.RuleLegacy.String(), "outlier lower fence: legacy (q1-1.5*q1) or tukey (q1-1.5*iqr)")

	return cmd
}

func main() {
	log.Logger = newLogger(os.Stderr, 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled):
		log.Fatal().Msg("interrupted")
	default:
		log.Fatal().Err(err).Msg("sandfly-entropystats failed")
	}
}

// usageError marks failures caused by bad flags rather than by the scan itself.
func usageError(format string, args ...any) error {
	return fmt.Errorf("invalid arguments: "+format, args...)
}
