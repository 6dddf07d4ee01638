// Package statusobject implements the Local Status Object: a per-tenant
// record visible cluster-wide, written only by the current local leader,
// backed by a corev1.ConfigMap rather than a bespoke CRD.
package statusobject

import (
	"context"
	"encoding/json"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"go.uber.org/zap"
)

// dataKey is the ConfigMap data key the marshaled LocalStatus lives under.
const dataKey = "status.json"

// LocalStatus is the set of fields a Local Status Object's status carries.
type LocalStatus struct {
	LeaderPod          string    `json:"leaderPod"`
	ForgingEnabled     bool      `json:"forgingEnabled"`
	LastTransitionTime time.Time `json:"lastTransitionTime"`
}

// ConfigMapClient is the subset of
// k8s.io/client-go/kubernetes/typed/core/v1.ConfigMapInterface the store
// depends on.
type ConfigMapClient interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*corev1.ConfigMap, error)
	Create(ctx context.Context, cm *corev1.ConfigMap, opts metav1.CreateOptions) (*corev1.ConfigMap, error)
	Update(ctx context.Context, cm *corev1.ConfigMap, opts metav1.UpdateOptions) (*corev1.ConfigMap, error)
}

// Store reads and writes a single tenant's Local Status Object.
type Store struct {
	client    ConfigMapClient
	namespace string
	name      string
	labels    map[string]string
	log       *zap.Logger
}

// New constructs a Store. name is typically identity.Identity.ClusterStateName
// or an equivalent per-tenant key; labels are attached on create for
// discoverability.
func New(client ConfigMapClient, namespace, name string, labels map[string]string, log *zap.Logger) *Store {
	return &Store{client: client, namespace: namespace, name: name, labels: labels, log: log}
}

// Read returns the current status and whether the object exists. A missing
// object is not an error: it means no replica has ever held leadership for
// this tenant.
func (s *Store) Read(ctx context.Context) (LocalStatus, bool, error) {
	cm, err := s.client.Get(ctx, s.name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return LocalStatus{}, false, nil
	}
	if err != nil {
		return LocalStatus{}, false, serrors.Wrap(err, "name", s.name, "namespace", s.namespace)
	}
	var status LocalStatus
	if raw, ok := cm.Data[dataKey]; ok {
		if jsonErr := json.Unmarshal([]byte(raw), &status); jsonErr != nil {
			return LocalStatus{}, false, serrors.Wrap(jsonErr, "name", s.name, "namespace", s.namespace)
		}
	}
	return status, true, nil
}

// Write unconditionally writes status, performed every tick while leader,
// without optimizing for the unchanged case.
func (s *Store) Write(ctx context.Context, status LocalStatus) error {
	cm, err := s.client.Get(ctx, s.name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return s.create(ctx, status)
	}
	if err != nil {
		return serrors.Wrap(err, "name", s.name, "namespace", s.namespace)
	}
	return s.update(ctx, cm, status)
}

// ClearIfSelf performs a race-safe clear: read the object first, and if it
// does not currently record self as leader, skip the write entirely and
// log it.
func (s *Store) ClearIfSelf(ctx context.Context, self string) error {
	current, found, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if !found || current.LeaderPod != self {
		s.log.Debug("status clear skipped: object no longer records self as leader",
			zap.String("recorded_leader", current.LeaderPod), zap.Bool("found", found))
		return nil
	}
	return s.Write(ctx, LocalStatus{
		LeaderPod:          "",
		ForgingEnabled:     false,
		LastTransitionTime: time.Now(),
	})
}

func (s *Store) create(ctx context.Context, status LocalStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: s.name, Namespace: s.namespace, Labels: s.labels},
		Data:       map[string]string{dataKey: string(raw)},
	}
	_, err = s.client.Create(ctx, cm, metav1.CreateOptions{})
	if k8serrors.IsAlreadyExists(err) {
		// Another replica created it between our Get and Create; retry as
		// an update on the next tick rather than looping here.
		return nil
	}
	return err
}

func (s *Store) update(ctx context.Context, cm *corev1.ConfigMap, status LocalStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return err
	}
	updated := cm.DeepCopy()
	if updated.Data == nil {
		updated.Data = map[string]string{}
	}
	updated.Data[dataKey] = string(raw)
	_, err = s.client.Update(ctx, updated, metav1.UpdateOptions{})
	return err
}
