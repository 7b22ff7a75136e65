package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/collect"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/ssh"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/statistics"
)

// constMaxSSHWorkers caps concurrent sessions so servers with a low MaxSessions don't refuse us.
const constMaxSSHWorkers = 8

// source lists targets and calculates their entropy, either locally or over SSH.
type source interface {
	targets(ctx context.Context, root string) ([]string, error)
	entropy(ctx context.Context, eng *entropy.Engine, path string, sinks ...io.Writer) (entropy.FileEntropy, error)
	workers() int
}

type localSource struct {
	collector *collect.Collector
}

func (l localSource) targets(_ context.Context, root string) ([]string, error) {
	return l.collector.Targets(root)
}

func (l localSource) entropy(_ context.Context, eng *entropy.Engine, path string, sinks ...io.Writer) (entropy.FileEntropy, error) {
	return eng.File(path, sinks...)
}

func (l localSource) workers() int {
	return runtime.NumCPU()
}

type sshSource struct {
	conn *ssh.SSH
}

func (s sshSource) targets(ctx context.Context, root string) ([]string, error) {
	return s.conn.ListFiles(ctx, root)
}

func (s sshSource) entropy(ctx context.Context, eng *entropy.Engine, path string, sinks ...io.Writer) (entropy.FileEntropy, error) {
	size, err := s.conn.Size(ctx, path)
	if err != nil {
		return entropy.FileEntropy{}, &entropy.ErrMetadata{Path: path, Err: err}
	}

	// remote files can't be re-read, so the ceiling is checked before opening
	if size > eng.MaxSize() {
		return entropy.FileEntropy{}, entropy.NewErrFileTooLarge(path, size, eng.MaxSize())
	}

	rc, err := s.conn.Open(ctx, path)
	if err != nil {
		return entropy.FileEntropy{}, &entropy.ErrRead{Path: path, Err: err}
	}

	fe, err := eng.Stream(path, size, rc, sinks...)
	cerr := rc.Close()

	switch {
	case err != nil:
		return entropy.FileEntropy{}, err
	case cerr != nil:
		return entropy.FileEntropy{}, &entropy.ErrRead{Path: path, Err: cerr}
	default:
		return fe, nil
	}
}

func (s sshSource) workers() int {
	return min(runtime.NumCPU(), constMaxSSHWorkers)
}

func (cfg *config) source() (source, error) {
	if cfg.inCfg.sshConfig.Host != "" {
		if err := cfg.sshInit(); err != nil {
			return nil, err
		}
		return sshSource{conn: cfg.inCfg.sshConn}, nil
	}

	collector := collect.NewCollector().WithSkipFunc(func(path string, reason error) {
		cfg.log.Debug().Str("path", path).Err(reason).Msg("skipping path")
	})

	return localSource{collector: collector}, nil
}

func (cfg *config) checkFile(ctx context.Context, src source, eng *entropy.Engine, path string) *File {
	if ctx.Err() != nil {
		return nil
	}

	var (
		hasher *MultiHasher
		sinks  []io.Writer
	)

	if len(cfg.hashers) > 0 {
		hasher = NewMultiHasher(cfg.hashers...)
		sinks = append(sinks, hasher)
	}

	fe, err := src.entropy(ctx, eng, path, sinks...)
	if err != nil {
		cfg.log.Debug().Str("path", path).Str("class", entropy.Class(err)).Err(err).Msg("skipping file")
		return nil
	}

	cfg.log.Trace().Str("path", path).Float64("entropy", fe.Entropy).Msg("scanned")

	file := NewFile(fe)
	if hasher != nil {
		file.Checksums = hasher.Checksums()
	}

	return file
}

func (cfg *config) concurrent(n, size int, work func(i int)) error {
	workers, err := ants.NewPool(size)
	if err != nil {
		return fmt.Errorf("error creating worker pool: %w", err)
	}
	defer workers.Release()

	wg := new(sync.WaitGroup)

	for i := 0; i < n; i++ {
		wg.Add(1)
		if err = workers.Submit(func() {
			defer wg.Done()
			work(i)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("error submitting work: %w", err)
		}
	}

	wg.Wait()

	return nil
}

// scan calculates the entropy of every target under the configured path. Files that
// fail are logged and left out; the result order is the collector's order whether or
// not the worker pool is used.
func (cfg *config) scan(ctx context.Context, src source, eng *entropy.Engine) (*Results, error) {
	targets, err := src.targets(ctx, cfg.inCfg.target)
	if err != nil {
		return nil, fmt.Errorf("error listing targets (%s): %w", cfg.inCfg.target, err)
	}

	cfg.log.Debug().Str("target", cfg.inCfg.target).Int("files", len(targets)).Msg("collected targets")

	found := make([]*File, len(targets))
	work := func(i int) { found[i] = cfg.checkFile(ctx, src, eng, targets[i]) }

	switch {
	case cfg.goFast && len(targets) > 1:
		if err = cfg.concurrent(len(targets), src.workers(), work); err != nil {
			return nil, err
		}
	default:
		for i := range targets {
			work(i)
		}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	results := NewResults(cfg.hashers...)

	for _, f := range found {
		if f != nil {
			results.Add(f)
		}
	}

	cfg.log.Debug().Int("scanned", len(results.Files)).Int("skipped", len(targets)-len(results.Files)).Msg("scan complete")

	return results, nil
}

func (cfg *config) runScan(ctx context.Context, stdout io.Writer) error {
	src, err := cfg.source()
	if err != nil {
		return err
	}

	results, err := cfg.scan(ctx, src, cfg.engine())
	if err != nil {
		return err
	}

	results.Files = results.AtLeast(cfg.minEntropy)

	return cfg.output(stdout, func(w io.Writer) error {
		return cfg.rendererFor().scan(w, results)
	})
}

func (cfg *config) runStats(ctx context.Context, stdout io.Writer) error {
	src, err := cfg.source()
	if err != nil {
		return err
	}

	results, err := cfg.scan(ctx, src, cfg.engine())
	if err != nil {
		return err
	}

	entries := results.Entropies()

	summary, err := statistics.Summarize(cfg.inCfg.target, entries)
	if errors.Is(err, statistics.ErrEmptyInput) {
		return fmt.Errorf("no files could be scanned under %s: %w", cfg.inCfg.target, err)
	}
	if err != nil {
		return err
	}

	report := statsReport{Summary: summary, showOutliers: !cfg.noOutliers}

	if report.showOutliers {
		if report.Outliers, err = statistics.OutliersWithRule(entries, cfg.rule); err != nil {
			return err
		}
	}

	return cfg.output(stdout, func(w io.Writer) error {
		return cfg.rendererFor().stats(w, report)
	})
}
