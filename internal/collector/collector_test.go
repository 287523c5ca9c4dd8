package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/probe"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// testDeps wires the collector environment against a stub server for both
// the API and raw/page fetches.
func testDeps(t *testing.T, server *httptest.Server) *Deps {
	t.Helper()
	client := ghclient.New("", 5*time.Second)
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	client.GH.BaseURL = base
	client.MinRateLimitWait = time.Millisecond
	client.Sleep = func(time.Duration) {}

	return &Deps{
		Client:  client,
		Prober:  probe.New(client),
		RawBase: server.URL + "/raw",
		WebBase: server.URL + "/web",
	}
}

func TestContributorsCountFromLinkHeader(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/org/repo/contributors" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/repo/contributors?anon=true&page=57&per_page=1>; rel="last"`, server.URL))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"login":"alice","contributions":100}]`)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "repo"}
	c := &Contributors{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if n, ok := rec.AttrInt(record.AttrContributors); !ok || n != 57 {
		t.Errorf("contributors = %d, %v, want 57", n, ok)
	}
}

func TestContributorsSinglePageWithoutLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"login":"alice","contributions":100}]`)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "repo"}
	c := &Contributors{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if n, ok := rec.AttrInt(record.AttrContributors); !ok || n != 1 {
		t.Errorf("contributors = %d, %v, want 1", n, ok)
	}
}

func TestContributorsNotFoundLeavesAttributeAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "gone"}
	c := &Contributors{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if rec.Has(record.AttrContributors) {
		t.Error("contributor count should stay undetermined for a vanished repository")
	}
	if rec.Valid() {
		t.Error("record without a contributor count must be invalid")
	}
}

func TestContributorsScrapeFallbackOnForbidden(t *testing.T) {
	const landingPage = `<html><body>
	<a href="/org/huge/graphs/contributors">
	  Contributors <span title="2,331" class="Counter">2,331</span>
	</a>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/org/huge/contributors":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"The history or contributor list is too large to list contributors for this repository via the API."}`)
		case "/web/org/huge":
			fmt.Fprint(w, landingPage)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "huge"}
	c := &Contributors{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if n, ok := rec.AttrInt(record.AttrContributors); !ok || n != 2331 {
		t.Errorf("contributors = %d, %v, want 2331 from the sidebar figure", n, ok)
	}
}

func TestParseContributorCount(t *testing.T) {
	tests := []struct {
		name string
		page string
		want int
	}{
		{
			name: "plain figure",
			page: `<a href="/o/r/graphs/contributors">Contributors <span class="Counter">42</span></a>`,
			want: 42,
		},
		{
			name: "thousands separator",
			page: `<a href="/o/r/graphs/contributors">Contributors <span class="Counter">1,204</span></a>`,
			want: 1204,
		},
		{
			name: "capped figure",
			page: `<a href="/o/r/graphs/contributors">Contributors <span class="Counter hx_counter">5,000+</span></a>`,
			want: 5000,
		},
		{
			name: "no sidebar section means a lone contributor",
			page: `<html><body>nothing here</body></html>`,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseContributorCount(tt.page); got != tt.want {
				t.Errorf("parseContributorCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCollectorsSkipRecordsWithAttributePresent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	deps := testDeps(t, server)
	done := &record.Record{Owner: "org", Name: "done"}
	done.SetAttr(record.AttrContributors, 0)
	done.SetAttr(record.AttrHasReadme, false)
	done.SetAttr(record.AttrReadmeURL, "")
	done.SetAttr(record.AttrReadmeSize, 0)
	done.SetAttr(record.AttrLanguagesCount, 0)
	done.SetAttr(record.AttrWorkflowsCount, 0)
	done.SetAttr(record.AttrReleasesCount, 0)
	done.SetAttr(record.AttrEnvironmentsCount, 0)
	done.SetAttr(record.AttrHasDeployments, false)
	done.SetAttr(record.AttrLabelsCount, 0)
	done.SetAttr(record.AttrMilestonesCount, 0)
	done.SetAttr(record.AttrHasCodeOfConduct, false)
	done.SetAttr(record.AttrHasContributing, false)
	done.SetAttr(record.AttrHasIssueTemplate, false)
	done.SetAttr(record.AttrHasPRTemplate, false)
	done.SetAttr(record.AttrHasLicenseFile, false)
	done.SetAttr(record.AttrHasSecurityPolicy, false)
	done.SetAttr(record.AttrHasSupport, false)
	done.SetAttr(record.AttrHasFunding, false)
	done.SetAttr(record.AttrHasCodeowners, false)
	done.SetAttr(record.AttrHasChangelog, false)
	done.SetAttr(record.AttrHasCodespaces, false)

	records := []*record.Record{done}
	contributors := &Contributors{deps}
	if err := contributors.Collect(context.Background(), records); err != nil {
		t.Fatalf("contributors.Collect() unexpected error: %v", err)
	}
	for _, c := range Sequence(deps) {
		if err := c.Collect(context.Background(), records); err != nil {
			t.Fatalf("%s.Collect() unexpected error: %v", c.Name(), err)
		}
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("observed %d network calls for a fully collected record, want 0", n)
	}
}

func TestReadmeThenSize(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/org/repo/readme":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"name":"README.md","download_url":"%s/raw/org/repo/main/README.md"}`, server.URL)
		case "/raw/org/repo/main/README.md":
			w.Header().Set("Content-Length", "2048")
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	deps := testDeps(t, server)
	rec := &record.Record{Owner: "org", Name: "repo", DefaultBranch: "main"}
	records := []*record.Record{rec}

	if err := (&Readme{deps}).Collect(context.Background(), records); err != nil {
		t.Fatalf("readme.Collect() unexpected error: %v", err)
	}
	if err := (&ReadmeSize{deps}).Collect(context.Background(), records); err != nil {
		t.Fatalf("readme_size.Collect() unexpected error: %v", err)
	}

	if b, _ := rec.AttrBool(record.AttrHasReadme); !b {
		t.Error("has_readme = false, want true")
	}
	if n, _ := rec.AttrInt(record.AttrReadmeSize); n != 2048 {
		t.Errorf("readme_size = %d, want 2048", n)
	}
}

func TestReadmeMissingDegradesToZeroSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer server.Close()

	deps := testDeps(t, server)
	rec := &record.Record{Owner: "org", Name: "repo"}
	records := []*record.Record{rec}

	if err := (&Readme{deps}).Collect(context.Background(), records); err != nil {
		t.Fatalf("readme.Collect() unexpected error: %v", err)
	}
	if err := (&ReadmeSize{deps}).Collect(context.Background(), records); err != nil {
		t.Fatalf("readme_size.Collect() unexpected error: %v", err)
	}

	if b, ok := rec.AttrBool(record.AttrHasReadme); !ok || b {
		t.Errorf("has_readme = %v, %v, want explicitly false", b, ok)
	}
	if n, ok := rec.AttrInt(record.AttrReadmeSize); !ok || n != 0 {
		t.Errorf("readme_size = %d, %v, want 0", n, ok)
	}
}

func TestDeploymentsShortCircuitOnZeroEnvironments(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "repo"}
	rec.SetAttr(record.AttrEnvironmentsCount, 0)

	c := &Deployments{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if b, ok := rec.AttrBool(record.AttrHasDeployments); !ok || b {
		t.Errorf("has_deployments = %v, %v, want explicitly false", b, ok)
	}
	if calls.Load() != 0 {
		t.Errorf("observed %d calls, want 0 (zero environments implies no deployments)", calls.Load())
	}
}

func TestDeploymentsServerErrorMeansDeploymentsAtScale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"Server Error"}`)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "busy"}
	rec.SetAttr(record.AttrEnvironmentsCount, 3)

	c := &Deployments{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if b, ok := rec.AttrBool(record.AttrHasDeployments); !ok || !b {
		t.Errorf("has_deployments = %v, %v, want true on a platform-side listing failure", b, ok)
	}
}

func TestHealthFilesProbesFallbackPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the org-level default SECURITY.md exists.
		if r.URL.Path == "/raw/org/.github/main/SECURITY.md" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "repo", DefaultBranch: "main"}
	c := &HealthFiles{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	if b, _ := rec.AttrBool(record.AttrHasSecurityPolicy); !b {
		t.Error("has_security_policy = false, want true via the org .github repository")
	}
	if b, ok := rec.AttrBool(record.AttrHasChangelog); !ok || b {
		t.Errorf("has_changelog = %v, %v, want explicitly false", b, ok)
	}
}

func TestCommunityProfileBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/org/repo/community/profile" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"health_percentage": 80,
			"files": {
				"code_of_conduct": {"name":"Contributor Covenant","url":"u"},
				"contributing": {"url":"u"},
				"issue_template": null,
				"pull_request_template": null,
				"license": {"name":"MIT License","key":"mit","url":"u"}
			}
		}`)
	}))
	defer server.Close()

	rec := &record.Record{Owner: "org", Name: "repo"}
	c := &Community{testDeps(t, server)}
	if err := c.Collect(context.Background(), []*record.Record{rec}); err != nil {
		t.Fatalf("Collect() unexpected error: %v", err)
	}

	wantTrue := []string{record.AttrHasCodeOfConduct, record.AttrHasContributing, record.AttrHasLicenseFile}
	for _, attr := range wantTrue {
		if b, _ := rec.AttrBool(attr); !b {
			t.Errorf("%s = false, want true", attr)
		}
	}
	wantFalse := []string{record.AttrHasIssueTemplate, record.AttrHasPRTemplate}
	for _, attr := range wantFalse {
		if b, ok := rec.AttrBool(attr); !ok || b {
			t.Errorf("%s = %v, %v, want explicitly false", attr, b, ok)
		}
	}
}

func TestListingCountsFromStub(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/org/repo/languages":
			fmt.Fprint(w, `{"Go": 10000, "Makefile": 200, "Shell": 30}`)
		case "/repos/org/repo/actions/workflows":
			fmt.Fprint(w, `{"total_count": 4, "workflows": [{"id":1,"name":"ci"}]}`)
		case "/repos/org/repo/releases":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/repo/releases?page=9&per_page=1>; rel="last"`, server.URL))
			fmt.Fprint(w, `[{"id":1,"tag_name":"v1.0.0"}]`)
		case "/repos/org/repo/environments":
			fmt.Fprint(w, `{"total_count": 2, "environments": [{"id":1,"name":"production"}]}`)
		case "/repos/org/repo/deployments":
			fmt.Fprint(w, `[{"id":1}]`)
		case "/repos/org/repo/labels":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/repo/labels?page=12&per_page=1>; rel="last"`, server.URL))
			fmt.Fprint(w, `[{"name":"bug"}]`)
		case "/repos/org/repo/milestones":
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	deps := testDeps(t, server)
	rec := &record.Record{Owner: "org", Name: "repo"}
	records := []*record.Record{rec}

	steps := []Collector{
		&Languages{deps}, &Workflows{deps}, &Releases{deps},
		&Environments{deps}, &Deployments{deps}, &Labels{deps}, &Milestones{deps},
	}
	for _, c := range steps {
		if err := c.Collect(context.Background(), records); err != nil {
			t.Fatalf("%s.Collect() unexpected error: %v", c.Name(), err)
		}
	}

	checks := []struct {
		attr string
		want int
	}{
		{record.AttrLanguagesCount, 3},
		{record.AttrWorkflowsCount, 4},
		{record.AttrReleasesCount, 9},
		{record.AttrEnvironmentsCount, 2},
		{record.AttrLabelsCount, 12},
		{record.AttrMilestonesCount, 0},
	}
	for _, c := range checks {
		if n, ok := rec.AttrInt(c.attr); !ok || n != c.want {
			t.Errorf("%s = %d, %v, want %d", c.attr, n, ok, c.want)
		}
	}
	if b, _ := rec.AttrBool(record.AttrHasDeployments); !b {
		t.Error("has_deployments = false, want true")
	}
}
