package election_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	coordinationv1 "k8s.io/api/coordination/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"go.uber.org/zap"

	"github.com/cardano-forge/forgeguard/pkg/election"
)

func TestElection(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Election Suite")
}

// fakeLeaseClient is an in-memory election.LeaseClient. forceNextConflict
// lets a single test drive the optimistic-concurrency-conflict branch
// without a real API server.
type fakeLeaseClient struct {
	mu                sync.Mutex
	lease             *coordinationv1.Lease
	forceNextConflict bool
}

func (f *fakeLeaseClient) Get(_ context.Context, name string, _ metav1.GetOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lease == nil {
		return nil, k8serrors.NewNotFound(schema.GroupResource{Resource: "leases"}, name)
	}
	return f.lease.DeepCopy(), nil
}

func (f *fakeLeaseClient) Create(_ context.Context, lease *coordinationv1.Lease, _ metav1.CreateOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lease != nil {
		return nil, k8serrors.NewAlreadyExists(schema.GroupResource{Resource: "leases"}, lease.Name)
	}
	lease = lease.DeepCopy()
	lease.ResourceVersion = "1"
	f.lease = lease
	return lease.DeepCopy(), nil
}

func (f *fakeLeaseClient) Update(_ context.Context, lease *coordinationv1.Lease, _ metav1.UpdateOptions) (*coordinationv1.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceNextConflict {
		f.forceNextConflict = false
		return nil, k8serrors.NewConflict(schema.GroupResource{Resource: "leases"}, lease.Name, nil)
	}
	lease = lease.DeepCopy()
	f.lease = lease
	return lease.DeepCopy(), nil
}

func strPtr(s string) *string { return &s }
func int32Ptr(i int32) *int32 { return &i }

var _ = Describe("TryAcquireOrRenew", func() {
	var client *fakeLeaseClient
	var ctx context.Context

	BeforeEach(func() {
		client = &fakeLeaseClient{}
		ctx = context.Background()
	})

	It("creates the lease and becomes leader on the first tick", func() {
		eng := election.New(client, "default", "cardano-leader-preprod-abcdefgh", "pod-a", 15*time.Second, zap.NewNop())

		isLeader, holder, changed := eng.TryAcquireOrRenew(ctx)
		Expect(isLeader).To(BeTrue())
		Expect(holder).To(Equal("pod-a"))
		Expect(changed).To(BeTrue(), "first observation is a transition")
	})

	It("does not flip leadership on the second tick", func() {
		eng := election.New(client, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())

		_, _, _ = eng.TryAcquireOrRenew(ctx)
		isLeader, holder, changed := eng.TryAcquireOrRenew(ctx)
		Expect(isLeader).To(BeTrue())
		Expect(holder).To(Equal("pod-a"))
		Expect(changed).To(BeFalse(), "still leader, no transition")
	})

	It("defers to the other holder while its lease has not expired", func() {
		now := metav1.NowMicro()
		client.lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: "lease"},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       strPtr("pod-b"),
				AcquireTime:          &now,
				RenewTime:            &now,
				LeaseDurationSeconds: int32Ptr(15),
			},
		}
		eng := election.New(client, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())

		isLeader, holder, _ := eng.TryAcquireOrRenew(ctx)
		Expect(isLeader).To(BeFalse())
		Expect(holder).To(Equal("pod-b"))
	})

	It("takes over an expired lease", func() {
		stale := metav1.NewMicroTime(time.Now().Add(-1 * time.Hour))
		client.lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: "lease"},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       strPtr("pod-b"),
				AcquireTime:          &stale,
				RenewTime:            &stale,
				LeaseDurationSeconds: int32Ptr(15),
			},
		}
		eng := election.New(client, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())

		isLeader, holder, changed := eng.TryAcquireOrRenew(ctx)
		Expect(isLeader).To(BeTrue())
		Expect(holder).To(Equal("pod-a"))
		Expect(changed).To(BeTrue())
	})

	It("is not leader when the expired-lease takeover update conflicts", func() {
		stale := metav1.NewMicroTime(time.Now().Add(-1 * time.Hour))
		client.lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: "lease"},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       strPtr("pod-b"),
				AcquireTime:          &stale,
				RenewTime:            &stale,
				LeaseDurationSeconds: int32Ptr(15),
			},
		}
		client.forceNextConflict = true
		eng := election.New(client, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())

		isLeader, _, _ := eng.TryAcquireOrRenew(ctx)
		Expect(isLeader).To(BeFalse())
	})
})

var _ = Describe("ReleaseIfHeld", func() {
	It("clears the holder when self currently holds the lease", func() {
		client := &fakeLeaseClient{}
		ctx := context.Background()
		eng := election.New(client, "default", "lease", "pod-a", 15*time.Second, zap.NewNop())
		_, _, _ = eng.TryAcquireOrRenew(ctx)

		eng.ReleaseIfHeld(ctx)

		lease, err := client.Get(ctx, "lease", metav1.GetOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(*lease.Spec.HolderIdentity).To(Equal(""))
	})
})
