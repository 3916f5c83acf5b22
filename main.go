package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minimirror/api"
	"github.com/mqy/minimirror/channel"
	"github.com/mqy/minimirror/mirror"
	"github.com/mqy/minimirror/session"
	"github.com/mqy/minimirror/state"
)

var (
	flagApiURL      = flag.String("api-url", "http://127.0.0.1:8000/api", "pull API base URL")
	flagWsURL       = flag.String("ws-url", "ws://127.0.0.1:8000/ws", "event channel websocket URL")
	flagSessionFile = flag.String("session-file", "minimirror.db", "session store file")
	flagPidFile     = flag.String("pid-file", "minimirror.pid", "pid file")

	flagEmail    = flag.String("email", "", "login email, used when no stored session exists")
	flagPassword = flag.String("password", "", "login password, used when no stored session exists")

	flagMetricsAddr = flag.String("metrics-addr", "", "prometheus metrics listen address, empty disables metrics")
	flagPprofDir    = flag.String("pprof-dir", "pprof", "dir to save pprof data files")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	pid := os.Getpid()

	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	pprofDir := filepath.Join(*flagPprofDir, strconv.Itoa(pid))
	if err := os.MkdirAll(pprofDir, 0750); err != nil {
		return errorf("--pprof-dir: error create dir `%s`: %v", pprofDir, err)
	}
	defer func() {
		_ = os.RemoveAll(pprofDir)
	}()

	sessions, err := session.Open(*flagSessionFile)
	if err != nil {
		return errorf("session store: open `%s` error: %v", *flagSessionFile, err)
	}
	defer sessions.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := sessions.Load()
	if err != nil {
		return errorf("session store: load error: %v", err)
	}
	if sess == nil {
		if *flagEmail == "" || *flagPassword == "" {
			return errorf("no stored session: --email and --password are required")
		}
		resp, err := api.Login(ctx, *flagApiURL, *flagEmail, *flagPassword)
		if err != nil {
			return errorf("login error: %v", err)
		}
		sess = &session.Session{
			Token:    resp.Token,
			UserID:   resp.User.ID,
			UserName: resp.User.Name,
			Email:    resp.User.Email,
		}
		if err := sessions.Save(sess); err != nil {
			return errorf("session store: save error: %v", err)
		}
		glog.Infof("logged in as %s (uid %d)", sess.UserName, sess.UserID)
	}

	if *flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		go func() {
			glog.Infof("metrics listening on %s", *flagMetricsAddr)
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics server error: %v", err)
			}
		}()
	}

	engine := mirror.NewEngine(mirror.Config{
		Adapter:  channel.NewAdapter(*flagWsURL, sess.Token),
		Puller:   api.NewClient(*flagApiURL, sess.Token),
		Store:    state.NewStore(sess.UserID),
		Sessions: sessions,
	})

	glog.Info("minimirror client is starting")
	glog.Infof("`kill -USR1 %d` to dump goroutines; `kill -USR2 %d` to start/stop profiler; `CTRL+c` or `kill %d` to stop", pid, pid, pid)

	errChan := make(chan error, 1)
	go func() {
		errChan <- engine.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTERM, syscall.SIGINT)

	var prof *Profiler

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				if prof != nil {
					prof.dumpGoroutines()
				}
			case syscall.SIGUSR2:
				if prof == nil {
					prof = StartProfiler(pprofDir)
				} else {
					prof.Stop()
					prof = nil
				}
			case syscall.SIGTERM, syscall.SIGINT:
				glog.Infof("received signal `%s`, stopping", sig.String())
				if prof != nil {
					prof.Stop()
				}
				cancel()
				err := <-errChan
				glog.Info("minimirror client exited")
				if err != nil && !errors.Is(err, context.Canceled) {
					return 1
				}
				return 0
			}
		case err := <-errChan:
			if errors.Is(err, api.ErrUnauthorized) {
				return errorf("session expired or revoked: run again with --email and --password")
			}
			if err != nil {
				return errorf("engine error: %v", err)
			}
			return 0
		}
	}
}

func validateFlags() int {
	if *flagApiURL == "" {
		return errorf("--api-url is required")
	}
	if u, err := url.Parse(*flagApiURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errorf("--api-url: expect http(s) URL, got `%s`", *flagApiURL)
	}
	if *flagWsURL == "" {
		return errorf("--ws-url is required")
	}
	if u, err := url.Parse(*flagWsURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return errorf("--ws-url: expect ws(s) URL, got `%s`", *flagWsURL)
	}
	if *flagSessionFile == "" {
		return errorf("--session-file is required")
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}
	if *flagPprofDir == "" {
		return errorf("--pprof-dir is required")
	}
	return 0
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(string(content))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			}
			glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := os.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	return nil
}
