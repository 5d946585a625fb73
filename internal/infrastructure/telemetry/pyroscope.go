package telemetry

import (
	"fmt"

	"github.com/grafana/pyroscope-go"
	log "github.com/sirupsen/logrus"
)

const appName = "bitlift"

// InitPyroscope starts the continuous profiler and returns a shutdown
// function to be called on exit. An empty server URL disables profiling and
// returns a nil shutdown.
func InitPyroscope(serverURL string) (func(), error) {
	if serverURL == "" {
		return nil, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverURL,
		Logger:          nil,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pyroscope profiler: %s", err)
	}

	log.WithFields(log.Fields{
		"server":  serverURL,
		"service": appName,
	}).Info("pyroscope profiler started")

	return func() {
		if err := profiler.Stop(); err != nil {
			log.WithError(err).Warn("failed to stop pyroscope profiler")
			return
		}
		log.Debug("pyroscope profiler shutdown")
	}, nil
}
