package stellarnode

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	stellarv1alpha1 "github.com/stellar/stellar-operator/api/v1alpha1"
	"github.com/stellar/stellar-operator/internal/constants"
	"github.com/stellar/stellar-operator/internal/status"
)

var _ = Describe("DR failover across ticks", func() {
	var (
		ctx context.Context
		env *testEnv
		key types.NamespacedName
	)

	lastService := func() *corev1.Service {
		for i := len(env.ensurer.Ensured) - 1; i >= 0; i-- {
			if svc, ok := env.ensurer.Ensured[i].(*corev1.Service); ok {
				return svc
			}
		}
		return nil
	}

	tick := func() *stellarv1alpha1.StellarNode {
		res, err := env.reconcile(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(30 * time.Second))
		node, err := env.get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		return node
	}

	BeforeEach(func() {
		ctx = context.Background()
		env = newTestEnv(false, standbyValidator("core"))
		key = types.NamespacedName{Namespace: "stellar", Name: "core"}
		env.setReady(key, 1, "stellar/stellar-core:21.0.0")
	})

	It("measures sync lag against the node's own ledger", func() {
		By("leaving the lag unset while the local core is unreachable")
		node := tick()
		Expect(node.Status.LedgerSequence).To(BeZero())
		Expect(node.Status.DRStatus.SyncLag).To(BeNil())

		By("reading the local ledger from the node's Service")
		env.ledger.seq = 1000
		env.clock.SetTime(t0.Add(30 * time.Second))
		node = tick()
		Expect(env.ledger.urls).To(ContainElement("http://core.stellar.svc:11626"))
		Expect(node.Status.LedgerSequence).To(Equal(int64(1000)))
		Expect(node.Status.DRStatus.SyncLag).NotTo(BeNil())
		Expect(*node.Status.DRStatus.SyncLag).To(BeZero())
	})

	It("latches to Primary when the peer is lost and stays there", func() {
		By("observing a healthy peer as Standby")
		node := tick()
		Expect(node.Status.DRStatus).NotTo(BeNil())
		Expect(node.Status.DRStatus.CurrentRole).To(Equal(stellarv1alpha1.DRRoleStandby))
		Expect(node.Status.DRStatus.FailoverActive).To(BeFalse())
		Expect(node.Status.DRStatus.PeerHealth).To(Equal(stellarv1alpha1.PeerHealthHealthy))
		Expect(status.IsTrue(node.Status.Conditions, constants.ConditionPeerReachable)).To(BeTrue())
		Expect(node.Annotations).To(HaveKey(stellarv1alpha1.AnnotationDRLastSyncTime))
		Expect(node.Status.Phase).To(Equal(stellarv1alpha1.NodePhaseRunning))
		Expect(lastService().Annotations).NotTo(HaveKey(constants.AnnotationExternalDNSHostname))

		By("losing the peer")
		env.prober.setDown(true)
		env.clock.SetTime(t0.Add(30 * time.Second))
		node = tick()
		Expect(node.Status.DRStatus.CurrentRole).To(Equal(stellarv1alpha1.DRRolePrimary))
		Expect(node.Status.DRStatus.FailoverActive).To(BeTrue())
		Expect(node.Status.DRStatus.FailoverTime).NotTo(BeNil())
		Expect(node.Annotations).To(HaveKeyWithValue(stellarv1alpha1.AnnotationDRFailoverActive, "true"))
		Expect(status.HasReason(node.Status.Conditions, constants.ConditionDRFailover, constants.ReasonFailoverLatched)).To(BeTrue())
		Expect(status.IsFalse(node.Status.Conditions, constants.ConditionPeerReachable)).To(BeTrue())

		svc := lastService()
		Expect(svc).NotTo(BeNil())
		Expect(svc.Annotations).To(HaveKeyWithValue(constants.AnnotationExternalDNSHostname, "core.stellar.example"))
		Expect(svc.Annotations).To(HaveKeyWithValue(constants.AnnotationExternalDNSTTL, "60"))

		By("keeping Primary after the peer recovers")
		env.prober.setDown(false)
		env.clock.SetTime(t0.Add(60 * time.Second))
		node = tick()
		Expect(node.Status.DRStatus.CurrentRole).To(Equal(stellarv1alpha1.DRRolePrimary))
		Expect(node.Status.DRStatus.FailoverActive).To(BeTrue())
		Expect(status.IsTrue(node.Status.Conditions, constants.ConditionPeerReachable)).To(BeTrue())
		Expect(lastService().Annotations).To(HaveKey(constants.AnnotationExternalDNSHostname))
	})

	It("clears the latch only through the reset annotation", func() {
		tick()
		env.prober.setDown(true)
		env.clock.SetTime(t0.Add(30 * time.Second))
		node := tick()
		Expect(node.Status.DRStatus.FailoverActive).To(BeTrue())

		env.prober.setDown(false)
		patch := client.MergeFrom(node.DeepCopy())
		node.SetAnnotation(stellarv1alpha1.AnnotationDRFailoverReset, "true")
		Expect(env.client.Patch(ctx, node, patch)).To(Succeed())

		env.clock.SetTime(t0.Add(60 * time.Second))
		node = tick()
		Expect(node.Status.DRStatus.FailoverActive).To(BeFalse())
		Expect(node.Status.DRStatus.FailoverTime).To(BeNil())
		Expect(node.Status.DRStatus.CurrentRole).To(Equal(stellarv1alpha1.DRRoleStandby))
		Expect(node.Annotations).NotTo(HaveKey(stellarv1alpha1.AnnotationDRFailoverReset))
		Expect(node.Annotations).NotTo(HaveKey(stellarv1alpha1.AnnotationDRFailoverActive))
		Expect(status.HasReason(node.Status.Conditions, constants.ConditionDRFailover, constants.ReasonFailoverReset)).To(BeTrue())
		Expect(lastService().Annotations).NotTo(HaveKey(constants.AnnotationExternalDNSHostname))
	})

	It("stays Standby while the peer answers", func() {
		for i := 0; i < 3; i++ {
			env.clock.SetTime(t0.Add(time.Duration(i) * 30 * time.Second))
			node := tick()
			Expect(node.Status.DRStatus.CurrentRole).To(Equal(stellarv1alpha1.DRRoleStandby))
			Expect(node.Annotations).NotTo(HaveKey(stellarv1alpha1.AnnotationDRFailoverActive))
		}
	})
})
