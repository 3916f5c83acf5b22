package main

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

const (
	// See also http://golang.org/pkg/runtime/#pkg-variables
	memProfileRate = 4096

	profileTimeFormat = "20060102_150405"
)

// Profiler is an active profiling session, toggled by SIGUSR2.
type Profiler struct {
	dataDir string
	closers []func()
	stopped uint32
}

// StartProfiler starts cpu and memory profiling; call Stop to flush.
func StartProfiler(dataDir string) *Profiler {
	p := &Profiler{dataDir: dataDir}
	p.startCpuProfile()
	p.startMemProfile()
	return p
}

func (p *Profiler) startCpuProfile() {
	fn := p.dumpFile("cpu")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create cpu profile %q: %v", fn, err)
		return
	}

	glog.Infof("pprof: cpu profiling enabled, %s", fn)
	pprof.StartCPUProfile(f)
	p.closers = append(p.closers, func() {
		pprof.StopCPUProfile()
		f.Close()
		glog.Infof("pprof: cpu profiling disabled, %s", fn)
	})
}

func (p *Profiler) startMemProfile() {
	fn := p.dumpFile("mem")
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("pprof: could not create memory profile %q: %v", fn, err)
		return
	}

	old := runtime.MemProfileRate
	runtime.MemProfileRate = memProfileRate
	glog.Infof("pprof: memory profiling enabled (rate %d), %s", runtime.MemProfileRate, fn)
	p.closers = append(p.closers, func() {
		pprof.Lookup("heap").WriteTo(f, 0)
		f.Close()
		runtime.MemProfileRate = old
		glog.Infof("pprof: memory profiling disabled, %s", fn)
	})
}

// Stop stops the profile and flushes any unwritten data.
func (p *Profiler) Stop() {
	if !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		return
	}
	for _, closer := range p.closers {
		closer()
	}
}

func (p *Profiler) dumpFile(kind string) string {
	return path.Join(p.dataDir, fmt.Sprintf("%s-%s.pprof", kind, time.Now().Format(profileTimeFormat)))
}

func (p *Profiler) dumpGoroutines() {
	fn := path.Join(p.dataDir, fmt.Sprintf("goroutines-%s.dump", time.Now().Format(profileTimeFormat)))
	glog.Infof("dumping goroutine profile to %s", fn)
	f, err := os.Create(fn)
	if err != nil {
		glog.Errorf("failed to dump goroutine profile, error: %v", err)
		return
	}
	defer f.Close()
	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		glog.Errorf("failed to write goroutine profile to %s, error: %v", fn, err)
	}
}
