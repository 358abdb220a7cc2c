package observ

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	rtrace "runtime/trace"
)

// ProfileConfig names the output files for each profiler. Empty paths
// leave the profiler off.
type ProfileConfig struct {
	CPU     string
	Heap    string
	Runtime string
}

// Enabled reports whether any profiler is requested.
func (c ProfileConfig) Enabled() bool {
	return c.CPU != "" || c.Heap != "" || c.Runtime != ""
}

// Profiler owns the files of one profiling session.
type Profiler struct {
	cfg     ProfileConfig
	cpu     *os.File
	runtime *os.File
	stopped bool
}

// StartProfiler starts the CPU profile and the runtime trace. The heap
// profile is taken on Stop.
func StartProfiler(cfg ProfileConfig) (*Profiler, error) {
	p := &Profiler{cfg: cfg}
	if cfg.CPU != "" {
		f, err := os.Create(cfg.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		p.cpu = f
	}
	if cfg.Runtime != "" {
		f, err := os.Create(cfg.Runtime)
		if err != nil {
			p.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		if err := rtrace.Start(f); err != nil {
			_ = f.Close()
			p.stopCPU()
			return nil, fmt.Errorf("runtime trace: %w", err)
		}
		p.runtime = f
	}
	return p, nil
}

// Stop ends every profiler and writes the heap profile. Calling it twice
// is a no-op.
func (p *Profiler) Stop() error {
	if p == nil || p.stopped {
		return nil
	}
	p.stopped = true
	var errs []error
	if p.runtime != nil {
		rtrace.Stop()
		errs = append(errs, p.runtime.Close())
		p.runtime = nil
	}
	errs = append(errs, p.stopCPU())
	if p.cfg.Heap != "" {
		errs = append(errs, writeHeap(p.cfg.Heap))
	}
	return errors.Join(errs...)
}

func (p *Profiler) stopCPU() error {
	if p.cpu == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := p.cpu.Close()
	p.cpu = nil
	return err
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
