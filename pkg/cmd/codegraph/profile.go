package codegraph

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/profile"
)

type Stop interface {
	Stop()
}

type stopper struct{}

func (stopper) Stop() {}

// Profile starts the profiler named by mode (cpu, mem, block, mutex or trace)
// and returns the handle to stop it; `defer Profile(os.Getenv("CODEGRAPH_PROFILE")).Stop()`.
// A -tmp suffix writes the profile to a new temporary directory instead of
// the working directory.
func Profile(mode string) Stop {
	path := "."
	if strings.HasSuffix(mode, "-tmp") {
		mode = strings.TrimSuffix(mode, "-tmp")
		path = ""
	}
	var kind func(*profile.Profile)
	switch mode {
	case "mem":
		kind = profile.MemProfile
	case "cpu":
		kind = profile.CPUProfile
	case "block":
		kind = profile.BlockProfile
	case "mutex":
		kind = profile.MutexProfile
	case "trace":
		kind = profile.TraceProfile
	default:
		return stopper{}
	}
	return profileOnExit(profile.Start(kind, profile.ProfilePath(path), profile.NoShutdownHook, profile.Quiet))
}

func profileOnExit(s Stop) Stop {
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		s.Stop()
		os.Exit(1)
	}()
	return s
}
