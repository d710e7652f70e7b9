package api

import (
	"fmt"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dlrs-ng/land-registry/pkg/metrics"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
	"github.com/dlrs-ng/land-registry/pkg/registry"
)

var _ = Describe("Parcel API", func() {
	var h http.Handler

	submitTo := func(srv http.Handler) parcel.Record {
		rec, rs := doRequest[parcel.Record](srv, http.MethodPost, "/api/parcels", adaSubmissionJSON, nil)
		Expect(rs.StatusCode).To(Equal(http.StatusCreated))
		return rec
	}
	submit := func() parcel.Record { return submitTo(h) }

	BeforeEach(func() {
		h = newTestRouter(Config{})
	})

	It("reports health", func() {
		body, rs := doRequest[map[string]string](h, http.MethodGet, "/api/health", "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("status", "ok"))
	})

	Context("submitting and approving a parcel", Ordered, func() {
		var (
			srv     http.Handler
			created parcel.Record
		)

		BeforeAll(func() {
			srv = newTestRouter(Config{})
		})

		It("creates a PENDING record", func() {
			created = submitTo(srv)
			Expect(created.ID).To(Equal(parcel.ID(1)))
			Expect(created.LandID).To(HavePrefix("NG-LAND-"))
			Expect(created.Status).To(Equal(parcel.StatusPending))
			Expect(created.Signature).To(MatchRegexp(`^[0-9a-f]{64}$`))
			Expect(created.Fingerprint).To(BeNil())
			Expect(created.VerifiedAt).To(BeNil())
		})

		It("lists and fetches the record", func() {
			list, rs := doRequest[[]parcel.Record](srv, http.MethodGet, "/api/parcels?status=pending", "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(list).To(HaveLen(1))

			got, rs := doRequest[parcel.Record](srv, http.MethodGet, fmt.Sprintf("/api/parcels/%d", created.ID), "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(got.LandID).To(Equal(created.LandID))
		})

		It("approves the record once", func() {
			path := fmt.Sprintf("/api/parcels/%d/approve", created.ID)
			approved, rs := doRequest[parcel.Record](srv, http.MethodPost, path, "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(approved.Status).To(Equal(parcel.StatusVerified))
			Expect(approved.Fingerprint).NotTo(BeNil())
			Expect(approved.Signature).To(Equal(created.Signature))
			created = approved

			errBody, rs := doRequest[ErrorResponse](srv, http.MethodPost, path, "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errBody.Error).To(Equal(CodeAlreadyVerified))
			Expect(errBody.Message).To(Equal("Parcel is already verified and immutable"))
		})

		It("refuses to edit or delete the verified record", func() {
			path := fmt.Sprintf("/api/parcels/%d", created.ID)
			errBody, rs := doRequest[ErrorResponse](srv, http.MethodPut, path, `{"ownerName":"Mallory"}`, nil)
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
			Expect(errBody.Error).To(Equal(CodeImmutableRecord))

			_, rs = doRequest[ErrorResponse](srv, http.MethodDelete, path, "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))

			got, _ := doRequest[parcel.Record](srv, http.MethodGet, path, "", nil)
			Expect(got.OwnerName).To(Equal("Ada Obi"))
		})

		It("verifies by land id and by fingerprint with a redacted view", func() {
			byLand, rs := doRequest[map[string]any](srv, http.MethodGet, "/api/verify?landId="+created.LandID, "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(byLand).To(HaveKeyWithValue("status", "VERIFIED"))
			Expect(byLand).To(HaveKeyWithValue("ownerName", "Ada Obi"))
			Expect(byLand).NotTo(HaveKey("nin"))
			Expect(byLand).NotTo(HaveKey("phone"))
			Expect(byLand).NotTo(HaveKey("geometry"))

			byHash, rs := doRequest[parcel.PublicView](srv, http.MethodGet, "/api/verify?hash="+strings.ToUpper(*created.Fingerprint), "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(byHash.LandID).To(Equal(created.LandID))
		})

		It("reports the stored hashes as consistent", func() {
			report, rs := doRequest[parcel.IntegrityReport](srv, http.MethodGet, fmt.Sprintf("/api/parcels/%d/integrity", created.ID), "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(report.SignatureValid).To(BeTrue())
			Expect(report.FingerprintValid).To(HaveValue(BeTrue()))
			Expect(report.Consistent).To(BeTrue())
		})

		It("returns the audit trail newest first", func() {
			page, rs := doRequest[HistoryResponse](srv, http.MethodGet, fmt.Sprintf("/api/parcels/%d/history", created.ID), "", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(page.Events).To(HaveLen(2))
			Expect(page.Events[0].Type).To(Equal(parcel.EventApproved))
			Expect(page.Events[1].Type).To(Equal(parcel.EventSubmitted))
		})
	})

	It("edits and removes a pending record", func() {
		created := submit()
		path := fmt.Sprintf("/api/parcels/%d", created.ID)

		edited, rs := doRequest[parcel.Record](h, http.MethodPut, path, `{"ownerName":"Ada Obi-Eze","status":"VERIFIED","signature":"x"}`, nil)
		Expect(rs.StatusCode).To(Equal(http.StatusOK))
		Expect(edited.OwnerName).To(Equal("Ada Obi-Eze"))
		Expect(edited.Status).To(Equal(parcel.StatusPending))
		Expect(edited.Signature).To(Equal(created.Signature))

		body, rs := doRequest[map[string]bool](h, http.MethodDelete, path, "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("success", true))

		_, rs = doRequest[ErrorResponse](h, http.MethodGet, path, "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusNotFound))
	})

	DescribeTable("rejects bad requests",
		func(method, path, body string, status int, code string) {
			errBody, rs := doRequest[ErrorResponse](h, method, path, body, nil)
			Expect(rs.StatusCode).To(Equal(status))
			Expect(errBody.Error).To(Equal(code))
		},
		Entry("missing parcel", http.MethodGet, "/api/parcels/42", "", http.StatusNotFound, CodeNotFound),
		Entry("non-numeric id", http.MethodGet, "/api/parcels/abc", "", http.StatusNotFound, CodeNotFound),
		Entry("approve missing parcel", http.MethodPost, "/api/parcels/42/approve", "", http.StatusNotFound, CodeNotFound),
		Entry("malformed JSON", http.MethodPost, "/api/parcels", "{", http.StatusBadRequest, CodeBadRequest),
		Entry("unknown status filter", http.MethodGet, "/api/parcels?status=DRAFT", "", http.StatusBadRequest, CodeBadRequest),
		Entry("verify without identifiers", http.MethodGet, "/api/verify", "", http.StatusBadRequest, CodeBadRequest),
		Entry("verify unknown land id", http.MethodGet, "/api/verify?landId=NG-LAND-NOPE-0000", "", http.StatusNotFound, CodeNotFound),
		Entry("invalid page token", http.MethodGet, "/api/parcels/1/history?pageToken=yesterday", "", http.StatusBadRequest, CodeBadRequest),
	)

	It("lists every invalid field of a submission", func() {
		errBody, rs := doRequest[ErrorResponse](h, http.MethodPost, "/api/parcels", `{"ownerName":"Ada Obi","points":[]}`, nil)
		Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(errBody.Error).To(Equal(CodeValidation))

		fields := make([]string, 0, len(errBody.Fields))
		for _, f := range errBody.Fields {
			fields = append(fields, f.Field)
		}
		Expect(fields).To(ContainElements("nin", "phone", "landDescription"))
	})

	It("explains a missing verification identifier", func() {
		errBody, _ := doRequest[ErrorResponse](h, http.MethodGet, "/api/verify?landId=%20", "", nil)
		Expect(errBody.Message).To(Equal("Provide a Land ID or SHA-256 hash"))
	})

	It("serves metrics when a gatherer is configured", func() {
		reg := prometheus.NewRegistry()
		h = newTestRouter(Config{Metrics: reg}, registry.WithMetrics(metrics.New(reg)))
		submit()

		req, rs := doRequest[any](h, http.MethodGet, "/metrics", "", nil)
		Expect(req).To(BeNil())
		Expect(rs.StatusCode).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Role gate", func() {
	var h http.Handler

	BeforeEach(func() {
		h = newTestRouter(Config{Identity: HeaderIdentityExtractor})
	})

	surveyor := map[string]string{RoleHeader: "surveyor", PrincipalHeader: "bola@surcon.example"}
	admin := map[string]string{RoleHeader: "admin", PrincipalHeader: "ministry@example.gov"}

	It("keeps anonymous callers to the public endpoints", func() {
		errBody, rs := doRequest[ErrorResponse](h, http.MethodPost, "/api/parcels", adaSubmissionJSON, nil)
		Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
		Expect(errBody.Error).To(Equal(CodeForbidden))

		_, rs = doRequest[ErrorResponse](h, http.MethodGet, "/api/parcels", "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusForbidden))

		_, rs = doRequest[ErrorResponse](h, http.MethodGet, "/api/verify?landId=NG-LAND-NOPE-0000", "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusNotFound))

		_, rs = doRequest[map[string]string](h, http.MethodGet, "/api/health", "", nil)
		Expect(rs.StatusCode).To(Equal(http.StatusOK))
	})

	It("lets surveyors submit but only admins approve", func() {
		created, rs := doRequest[parcel.Record](h, http.MethodPost, "/api/parcels", adaSubmissionJSON, surveyor)
		Expect(rs.StatusCode).To(Equal(http.StatusCreated))

		path := fmt.Sprintf("/api/parcels/%d/approve", created.ID)
		_, rs = doRequest[ErrorResponse](h, http.MethodPost, path, "", surveyor)
		Expect(rs.StatusCode).To(Equal(http.StatusForbidden))

		_, rs = doRequest[parcel.Record](h, http.MethodPost, path, "", admin)
		Expect(rs.StatusCode).To(Equal(http.StatusOK))

		page, _ := doRequest[HistoryResponse](h, http.MethodGet, fmt.Sprintf("/api/parcels/%d/history", created.ID), "", surveyor)
		Expect(page.Events).To(HaveLen(2))
		Expect(page.Events[0].Actor).To(Equal("ministry@example.gov"))
		Expect(page.Events[1].Actor).To(Equal("bola@surcon.example"))
	})
})

var _ = Describe("CORS", func() {
	var h http.Handler

	BeforeEach(func() {
		h = newTestRouter(Config{CORS: CORSConfig{
			AllowedOrigins:        ParseOrigins("https://registry.example.gov/ , "),
			AllowedOriginSuffixes: DefaultCORSOriginSuffixes,
		}})
	})

	DescribeTable("preflight",
		func(origin string, allowed bool) {
			_, rs := doRequest[any](h, http.MethodOptions, "/api/parcels", "", map[string]string{
				"Origin":                        origin,
				"Access-Control-Request-Method": http.MethodPost,
			})
			if allowed {
				Expect(rs.Header.Get("Access-Control-Allow-Origin")).To(Equal(origin))
			} else {
				Expect(rs.Header.Get("Access-Control-Allow-Origin")).To(BeEmpty())
			}
		},
		Entry("local dev server", "http://localhost:5173", true),
		Entry("loopback dev server", "http://127.0.0.1:5173", true),
		Entry("configured origin", "https://registry.example.gov", true),
		Entry("preview deployment", "https://dlrs-git-main.vercel.app", true),
		Entry("lookalike host", "https://vercel.app.evil.example", false),
		Entry("unknown origin", "https://evil.example", false),
	)
})
