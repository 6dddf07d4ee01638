// Package credentials implements the conditional, atomic materialization
// and revocation of the three forging-credential file pairs on the shared
// volume.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awslabs/operatorpkg/serrors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/metrics"
)

// DesiredState is the target state for the credential set.
type DesiredState int

const (
	Absent DesiredState = iota
	Present
)

func (d DesiredState) String() string {
	if d == Present {
		return "Present"
	}
	return "Absent"
}

// targetFileMode is the mode every materialized credential file must have.
const targetFileMode = 0o600

// FilePair is one of the three {source, target} credential file pairs: KES
// key, VRF key, and operational certificate.
type FilePair struct {
	Name   string // "kes_key", "vrf_key", or "op_cert" — used as the metric label
	Source string
	Target string
}

// ErrSourceMissing is returned (wrapped, naming the file) when a source
// path does not exist while reconciling toward Present. This is fatal: the
// caller must log it, emit a terminal metric, and exit non-zero.
var ErrSourceMissing = errors.New("credential source missing")

// Manager applies a desired state to the three credential file pairs with
// atomic per-file semantics.
type Manager struct {
	pairs [3]FilePair
	log   *zap.Logger
}

// New constructs a Manager from the three configured file pairs.
func New(kes, vrf, opCert FilePair, log *zap.Logger) *Manager {
	return &Manager{pairs: [3]FilePair{kes, vrf, opCert}, log: log}
}

// Apply reconciles disk state to desired, returning true iff anything on
// disk changed. Present semantics: copy+chmod any missing or differing
// file. Absent semantics: remove any present target. Per-file errors,
// ErrSourceMissing included, are collected and returned together; the
// manager always attempts every file.
func (m *Manager) Apply(desired DesiredState) (applied bool, err error) {
	var errs error
	for _, pair := range m.pairs {
		changed, pairErr := m.applyPair(pair, desired)
		applied = applied || changed
		if pairErr != nil {
			errs = multierr.Append(errs, pairErr)
		}
	}
	return applied, errs
}

func (m *Manager) applyPair(pair FilePair, desired DesiredState) (changed bool, err error) {
	if desired == Present {
		return m.applyPresent(pair)
	}
	return m.applyAbsent(pair)
}

func (m *Manager) applyPresent(pair FilePair) (changed bool, err error) {
	sourceBytes, err := os.ReadFile(pair.Source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, serrors.Wrap(fmt.Errorf("%w", ErrSourceMissing), "file", pair.Name, "path", pair.Source)
		}
		return false, serrors.Wrap(fmt.Errorf("reading source: %w", err), "file", pair.Name)
	}

	if identical, statErr := filesIdentical(pair.Target, sourceBytes); statErr == nil && identical {
		metrics.CredentialOperationsTotal.WithLabelValues("verify_skip", pair.Name).Inc()
		return false, nil
	}

	dir := filepath.Dir(pair.Target)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(pair.Target)+"-*")
	if err != nil {
		return false, serrors.Wrap(fmt.Errorf("creating temp file: %w", err), "file", pair.Name)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(sourceBytes); err != nil {
		tmp.Close()
		return false, serrors.Wrap(fmt.Errorf("writing temp file: %w", err), "file", pair.Name)
	}
	if err := tmp.Chmod(targetFileMode); err != nil {
		tmp.Close()
		return false, serrors.Wrap(fmt.Errorf("chmod temp file: %w", err), "file", pair.Name)
	}
	if err := tmp.Close(); err != nil {
		return false, serrors.Wrap(fmt.Errorf("closing temp file: %w", err), "file", pair.Name)
	}
	if err := os.Rename(tmpPath, pair.Target); err != nil {
		return false, serrors.Wrap(fmt.Errorf("renaming into place: %w", err), "file", pair.Name)
	}

	metrics.CredentialOperationsTotal.WithLabelValues("write", pair.Name).Inc()
	m.log.Debug("credential materialized", zap.String("file", pair.Name))
	return true, nil
}

func (m *Manager) applyAbsent(pair FilePair) (changed bool, err error) {
	err = os.Remove(pair.Target)
	switch {
	case err == nil:
		metrics.CredentialOperationsTotal.WithLabelValues("remove", pair.Name).Inc()
		m.log.Debug("credential revoked", zap.String("file", pair.Name))
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		metrics.CredentialOperationsTotal.WithLabelValues("verify_skip", pair.Name).Inc()
		return false, nil
	default:
		return false, serrors.Wrap(fmt.Errorf("removing target: %w", err), "file", pair.Name)
	}
}

// CredentialsPresent reports whether all three target files exist and are
// non-empty, used by the startup-readiness endpoint.
func (m *Manager) CredentialsPresent() bool {
	for _, pair := range m.pairs {
		info, err := os.Stat(pair.Target)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

func filesIdentical(path string, want []byte) (bool, error) {
	got, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if len(got) != len(want) {
		return false, nil
	}
	for i := range got {
		if got[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}
