// Package nodeobserver implements socket presence detection with
// debounced, monotonic present/absent transitions, plus best-effort PID
// discovery for the supervised node process.
package nodeobserver

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

// Transition reports a monotonic change in node presence observed between
// two consecutive calls to Observe.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionNodeReady
	TransitionNodeFailure
)

// stableDwellChecks is the number of consecutive positive checks, at
// main-loop cadence, required before the node is considered stably
// present.
const stableDwellChecks = 2

// Observer implements the Node Observer contract.
type Observer struct {
	socketPath         string
	executableName     string
	disableSocketCheck bool
	log                *zap.Logger

	mu                  sync.Mutex
	lastPresent         bool
	consecutivePresent  int
	everObserved        bool
}

// New constructs an Observer. executableName is matched against each
// process's comm (/proc/<pid>/comm) when discovering the node's PID.
func New(socketPath, executableName string, disableSocketCheck bool, log *zap.Logger) *Observer {
	return &Observer{
		socketPath:         socketPath,
		executableName:     executableName,
		disableSocketCheck: disableSocketCheck,
		log:                log,
	}
}

// IsNodePresent reports whether the IPC socket currently exists and is a
// socket. When DISABLE_SOCKET_CHECK is set this always returns true,
// bypassing socket-presence gating entirely (used in test configurations).
func (o *Observer) IsNodePresent() bool {
	if o.disableSocketCheck {
		return true
	}
	info, err := os.Stat(o.socketPath)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSocket != 0
}

// Observe samples IsNodePresent and returns the raw value alongside any
// monotonic transition relative to the previous call: present→absent is
// reported as a node-failure event, the reverse as a node-ready event. It
// also updates the stable-presence dwell counter consumed by
// StablyPresent.
func (o *Observer) Observe() (present bool, transition Transition) {
	present = o.IsNodePresent()

	o.mu.Lock()
	defer o.mu.Unlock()

	if present {
		o.consecutivePresent++
	} else {
		o.consecutivePresent = 0
	}

	if o.everObserved {
		if o.lastPresent && !present {
			transition = TransitionNodeFailure
		} else if !o.lastPresent && present {
			transition = TransitionNodeReady
		}
	}
	o.lastPresent = present
	o.everObserved = true
	return present, transition
}

// StablyPresent reports whether the node has been observed present for at
// least stableDwellChecks consecutive ticks. The supervisor's bootstrap
// phase waits for this before transitioning to the election regime.
func (o *Observer) StablyPresent() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consecutivePresent >= stableDwellChecks
}

// Reset clears the dwell/transition state. Used when the supervisor
// re-enters the bootstrap phase after a node-failure event.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastPresent = false
	o.consecutivePresent = 0
	o.everObserved = false
}

// FindNodePid scans the process table for the supervised node's
// executable. A missing PID is not an error: it signals a mode where the
// signaling transport is unavailable, e.g. the supervisor and node live in
// disjoint PID namespaces.
func (o *Observer) FindNodePid() (pid int, found bool) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		o.log.Debug("process table enumeration failed", zap.Error(err))
		metrics.NodePIDUnknownTotal.Inc()
		return 0, false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidatePid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile("/proc/" + entry.Name() + "/comm")
		if err != nil {
			// Process exited between readdir and read, or permission denied.
			o.log.Debug("process comm read failed", zap.Int("pid", candidatePid), zap.Error(err))
			continue
		}
		if strings.TrimSpace(string(comm)) == o.executableName {
			return candidatePid, true
		}
	}
	metrics.NodePIDUnknownTotal.Inc()
	return 0, false
}
