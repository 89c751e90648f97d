package integration

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/ldap-sync-checker/internal/status"
	"github.com/stacklok/ldap-sync-checker/test-integration/monitor/helpers"
)

const (
	currentCSN = "20250115100000.000000Z#000000#001#000000"
	recentCSN  = "20250115095900.000000Z#000000#001#000000"
	staleCSN   = "20250115093000.000000Z#000000#001#000000"

	checkInterval = 200 * time.Millisecond
)

var _ = Describe("Sync Monitor", Label("monitor"), func() {
	var (
		tempDir      string
		dir          *helpers.Directory
		alertmanager *helpers.Alertmanager
		monitor      *helpers.MonitorTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("monitor-test-")

		dir = helpers.NewDirectory()
		dir.SetCSN(helpers.ProviderURI, currentCSN)
		dir.SetCSN(helpers.Replica1URI, currentCSN)
		dir.SetCSN(helpers.Replica2URI, recentCSN)

		alertmanager = helpers.NewAlertmanager()

		configFile := helpers.WriteConfigYAML(tempDir, alertmanager.URL(), checkInterval)

		var err error
		monitor, err = helpers.NewMonitorTestHelper(ctx, configFile, filepath.Join(tempDir, "status"), dir)
		Expect(err).NotTo(HaveOccurred())

		Expect(monitor.StartServer()).To(Succeed())
		monitor.WaitForReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(monitor.StopServer()).To(Succeed())
		alertmanager.Close()
		cleanupTempDir(tempDir)
	})

	Context("When every consumer is in sync", func() {
		It("should report every consumer as in sync", func() {
			st := monitor.WaitForPhase(helpers.Replica1Name, status.CheckPhaseInSync, 5*time.Second)
			Expect(st.Reason).To(Equal("exact-match"))
			Expect(st.LastInSync).NotTo(BeNil())

			st = monitor.WaitForPhase(helpers.Replica2Name, status.CheckPhaseInSync, 5*time.Second)
			Expect(st.Reason).To(Equal("within-threshold"))
			Expect(st.LagSeconds).To(HaveValue(BeNumerically("==", 60)))
		})

		It("should list all consumers", func() {
			resp, err := monitor.Get("/v1/status")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list struct {
				Consumers []status.ConsumerStatus `json:"consumers"`
				Total     int                     `json:"total"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&list)).To(Succeed())
			Expect(list.Total).To(Equal(2))
		})

		It("should not send alerts", func() {
			Consistently(func() int {
				return len(alertmanager.AlertsWithLabel("team", "directory"))
			}, 3*checkInterval, checkInterval).Should(BeZero())
		})
	})

	Context("When a consumer falls behind", func() {
		BeforeEach(func() {
			dir.SetCSN(helpers.Replica2URI, staleCSN)
		})

		It("should mark the consumer out of sync and alert", func() {
			st := monitor.WaitForPhase(helpers.Replica2Name, status.CheckPhaseOutOfSync, 5*time.Second)
			Expect(st.Reason).To(Equal("exceeds-threshold"))

			Eventually(func() []helpers.ReceivedAlert {
				return alertmanager.AlertsWithLabel("instance", helpers.Replica2Name)
			}, 5*time.Second, checkInterval).ShouldNot(BeEmpty())

			alert := alertmanager.AlertsWithLabel("instance", helpers.Replica2Name)[0]
			Expect(alert.Labels).To(HaveKeyWithValue("reason", "exceeds-threshold"))
			Expect(alert.Labels).To(HaveKeyWithValue("team", "directory"))
			Expect(alert.Annotations).To(HaveKeyWithValue("env", "integration"))

			Expect(alertmanager.AlertsWithLabel("instance", helpers.Replica1Name)).To(BeEmpty())
		})

		It("should count consecutive failures and recover", func() {
			Eventually(func() (int, error) {
				st, err := monitor.GetConsumerStatus(helpers.Replica2Name)
				if err != nil {
					return 0, err
				}
				return st.ConsecutiveFailures, nil
			}, 5*time.Second, checkInterval).Should(BeNumerically(">=", 2))

			dir.SetCSN(helpers.Replica2URI, currentCSN)

			st := monitor.WaitForPhase(helpers.Replica2Name, status.CheckPhaseInSync, 5*time.Second)
			Expect(st.ConsecutiveFailures).To(BeZero())
		})
	})

	Context("When a consumer is unreachable", func() {
		It("should mark only that consumer unreachable", func() {
			dir.SetDown(helpers.Replica1URI, true)

			monitor.WaitForPhase(helpers.Replica1Name, status.CheckPhaseUnreachable, 5*time.Second)
			monitor.WaitForPhase(helpers.Replica2Name, status.CheckPhaseInSync, 5*time.Second)
		})
	})

	Context("When the provider is unreachable", func() {
		It("should fail the run and raise a provider alert", func() {
			dir.SetDown(helpers.ProviderURI, true)

			st := monitor.WaitForPhase(helpers.Replica1Name, status.CheckPhaseFailed, 5*time.Second)
			Expect(st.Reason).To(Equal("provider-unavailable"))

			Eventually(func() []helpers.ReceivedAlert {
				return alertmanager.AlertsWithLabel("alertname", "LDAPProviderUnavailable")
			}, 5*time.Second, checkInterval).ShouldNot(BeEmpty())

			By("keeping the last completed result")
			resp, err := monitor.Get("/v1/result")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
