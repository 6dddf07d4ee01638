package arbiter_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	v1alpha1 "github.com/cardano-forge/forgeguard/pkg/apis/v1alpha1"
	"github.com/cardano-forge/forgeguard/pkg/arbiter"
)

func TestArbiter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Arbiter Suite")
}

func runtimeScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	Expect(v1alpha1.AddToScheme(scheme)).To(Succeed())
	return scheme
}

func objectMeta() metav1.ObjectMeta {
	return metav1.ObjectMeta{Name: "preprod-abcdefgh-eu-west-1", Namespace: "default"}
}

func clientKey() client.ObjectKey {
	return client.ObjectKey{Namespace: "default", Name: "preprod-abcdefgh-eu-west-1"}
}

func testConfig() arbiter.Config {
	return arbiter.Config{
		Namespace: "default",
		SelfName:  "preprod-abcdefgh-eu-west-1",
		Network:   "preprod",
		PoolID:    "abcdefgh",
		Region:    "eu-west-1",
		Priority:  100,
	}
}

var _ = Describe("EnsureClusterStateObject", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates the cluster state object with defaults when missing", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(runtimeScheme()).WithStatusSubresource(&v1alpha1.ClusterState{}).Build()
		a := arbiter.New(fakeClient, testConfig(), zap.NewNop())

		Expect(a.EnsureClusterStateObject(ctx)).To(Succeed())

		var cs v1alpha1.ClusterState
		Expect(fakeClient.Get(ctx, clientKey(), &cs)).To(Succeed())
		Expect(cs.Spec.ForgeState).To(Equal(v1alpha1.DefaultForgeState))
		Expect(cs.Spec.Priority).To(Equal(100))
	})

	It("does not overwrite an existing, externally-authored spec", func() {
		existing := &v1alpha1.ClusterState{
			ObjectMeta: objectMeta(),
			Spec:       v1alpha1.ClusterStateSpec{ForgeState: v1alpha1.ForgeStateEnabled, Priority: 7},
		}
		fakeClient := fake.NewClientBuilder().WithScheme(runtimeScheme()).WithStatusSubresource(&v1alpha1.ClusterState{}).WithObjects(existing).Build()
		a := arbiter.New(fakeClient, testConfig(), zap.NewNop())

		Expect(a.EnsureClusterStateObject(ctx)).To(Succeed())

		var cs v1alpha1.ClusterState
		Expect(fakeClient.Get(ctx, clientKey(), &cs)).To(Succeed())
		Expect(cs.Spec.ForgeState).To(Equal(v1alpha1.ForgeStateEnabled))
		Expect(cs.Spec.Priority).To(Equal(7))
	})
})

var _ = Describe("ShouldAllowLocalForging", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("allows forging when the cluster is explicitly Enabled", func() {
		existing := &v1alpha1.ClusterState{
			ObjectMeta: objectMeta(),
			Spec:       v1alpha1.ClusterStateSpec{ForgeState: v1alpha1.ForgeStateEnabled, Priority: 100},
		}
		fakeClient := fake.NewClientBuilder().WithScheme(runtimeScheme()).WithStatusSubresource(&v1alpha1.ClusterState{}).WithObjects(existing).Build()
		a := arbiter.New(fakeClient, testConfig(), zap.NewNop())

		allow, reason := a.ShouldAllowLocalForging(ctx)
		Expect(allow).To(BeTrue())
		Expect(reason).To(Equal(v1alpha1.ReasonClusterForgeEnabled))
	})

	It("denies when the cluster state object cannot be read", func() {
		fakeClient := fake.NewClientBuilder().WithScheme(runtimeScheme()).WithStatusSubresource(&v1alpha1.ClusterState{}).Build()
		a := arbiter.New(fakeClient, testConfig(), zap.NewNop())

		allow, reason := a.ShouldAllowLocalForging(ctx)
		Expect(allow).To(BeFalse())
		Expect(reason).To(Equal(v1alpha1.ReasonEvaluationError))
	})
})

var _ = Describe("ReportLocalLeader", func() {
	It("writes the active leader, forging flag, and a Forging condition", func() {
		existing := &v1alpha1.ClusterState{
			ObjectMeta: objectMeta(),
			Spec:       v1alpha1.ClusterStateSpec{ForgeState: v1alpha1.ForgeStateEnabled, Priority: 100},
		}
		fakeClient := fake.NewClientBuilder().WithScheme(runtimeScheme()).WithStatusSubresource(&v1alpha1.ClusterState{}).WithObjects(existing).Build()
		a := arbiter.New(fakeClient, testConfig(), zap.NewNop())
		ctx := context.Background()

		Expect(a.ReportLocalLeader(ctx, "pod-a", true)).To(Succeed())

		var cs v1alpha1.ClusterState
		Expect(fakeClient.Get(ctx, clientKey(), &cs)).To(Succeed())
		Expect(cs.Status.ActiveLeader).To(Equal("pod-a"))
		Expect(cs.Status.ForgingEnabled).To(BeTrue())
		Expect(cs.Status.Conditions).To(HaveLen(1))
		Expect(cs.Status.Conditions[0].Type).To(Equal(v1alpha1.ConditionTypeForging))
	})
})
