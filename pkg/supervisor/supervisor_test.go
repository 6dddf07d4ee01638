package supervisor_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	coordinationv1 "k8s.io/api/coordination/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/credentials"
	"github.com/cardano-forge/forgeguard/pkg/election"
	"github.com/cardano-forge/forgeguard/pkg/nodeobserver"
	"github.com/cardano-forge/forgeguard/pkg/statusobject"
	"github.com/cardano-forge/forgeguard/pkg/supervisor"
)

func TestSupervisor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Supervisor Suite")
}

type fakeLeaseClient struct {
	mu    sync.Mutex
	lease *coordinationv1.Lease
}

func (f *fakeLeaseClient) Get(_ context.Context, name string, _ metav1.GetOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lease == nil {
		return nil, k8serrors.NewNotFound(schema.GroupResource{Resource: "leases"}, name)
	}
	return f.lease.DeepCopy(), nil
}
func (f *fakeLeaseClient) Create(_ context.Context, l *coordinationv1.Lease, _ metav1.CreateOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l = l.DeepCopy()
	l.ResourceVersion = "1"
	f.lease = l
	return l.DeepCopy(), nil
}
func (f *fakeLeaseClient) Update(_ context.Context, l *coordinationv1.Lease, _ metav1.UpdateOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lease = l.DeepCopy()
	return l.DeepCopy(), nil
}

type fakeConfigMapClient struct {
	cm *corev1.ConfigMap
}

func (f *fakeConfigMapClient) Get(_ context.Context, name string, _ metav1.GetOptions) (*corev1.ConfigMap, error) {
	if f.cm == nil {
		return nil, k8serrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, name)
	}
	return f.cm.DeepCopy(), nil
}
func (f *fakeConfigMapClient) Create(_ context.Context, cm *corev1.ConfigMap, _ metav1.CreateOptions) (*corev1.ConfigMap, error) {
	f.cm = cm.DeepCopy()
	return f.cm.DeepCopy(), nil
}
func (f *fakeConfigMapClient) Update(_ context.Context, cm *corev1.ConfigMap, _ metav1.UpdateOptions) (*corev1.ConfigMap, error) {
	f.cm = cm.DeepCopy()
	return f.cm.DeepCopy(), nil
}

func newFixtures() (*credentials.Manager, *election.Engine, *statusobject.Store, *nodeobserver.Observer, string) {
	g := GinkgoT()
	srcDir, dstDir := g.TempDir(), g.TempDir()
	names := [3]string{"kes_key", "vrf_key", "op_cert"}
	var pairs [3]credentials.FilePair
	for i, name := range names {
		src := filepath.Join(srcDir, name)
		Expect(os.WriteFile(src, []byte("secret"), 0o600)).To(Succeed())
		pairs[i] = credentials.FilePair{Name: name, Source: src, Target: filepath.Join(dstDir, name)}
	}
	credManager := credentials.New(pairs[0], pairs[1], pairs[2], zap.NewNop())
	engine := election.New(&fakeLeaseClient{}, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())
	statusStore := statusobject.New(&fakeConfigMapClient{}, "default", "status", nil, zap.NewNop())

	sockDir := g.TempDir()
	sockPath := filepath.Join(sockDir, "node.socket")
	listener, err := net.Listen("unix", sockPath)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = listener.Close() })
	observer := nodeobserver.New(sockPath, "cardano-node", false, zap.NewNop())

	return credManager, engine, statusStore, observer, dstDir
}

var _ = Describe("Run", func() {
	It("provisions credentials then forges as the sole leader", func() {
		credManager, engine, statusStore, observer, dstDir := newFixtures()
		sup := supervisor.New(supervisor.Config{
			SelfPodName:          "pod-a",
			ClusterManagement:    false,
			SleepInterval:        10 * time.Millisecond,
			StartupStableTimeout: 200 * time.Millisecond,
		}, observer, credManager, engine, nil, statusStore, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		Expect(sup.Run(ctx, nil)).To(Succeed())
		Expect(sup.StartupProvisioned()).To(BeTrue())

		status, found, err := statusStore.Read(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(status.LeaderPod).To(Equal("pod-a"))
		Expect(status.ForgingEnabled).To(BeTrue(), "sole leader records itself as forging while the loop runs")

		_, statErr := os.Stat(filepath.Join(dstDir, "kes_key"))
		Expect(os.IsNotExist(statErr)).To(BeTrue(), "shutdown revokes credentials once the loop stops")
	})
})
