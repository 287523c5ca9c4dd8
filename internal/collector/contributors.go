package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Contributors determines the contributor count, the target metric of the
// dataset. A record it cannot determine a count for stays without the
// attribute and is dropped by the validity filter; a determined zero is a
// valid value.
type Contributors struct {
	*Deps
}

func (c *Contributors) Name() string { return "contributors" }

func (c *Contributors) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrContributors) },
		c.collectOne)
}

func (c *Contributors) collectOne(ctx context.Context, rec *record.Record) error {
	count := 0
	err := c.Client.Do(ctx, "contributors "+rec.Identity().String(), func() (*github.Response, error) {
		contribs, resp, err := c.Client.GH.Repositories.ListContributors(ctx, rec.Owner, rec.Name,
			&github.ListContributorsOptions{
				Anon:        "true",
				ListOptions: github.ListOptions{PerPage: 1},
			})
		if err != nil {
			return resp, err
		}
		count = listingCount(resp, len(contribs))
		return resp, nil
	})

	switch {
	case err == nil:
		rec.SetAttr(record.AttrContributors, count)
		return nil
	case ghclient.IsNotFound(err):
		// Repository gone between discovery and collection; the count stays
		// undetermined and the record is filtered out.
		return nil
	case ghclient.StatusCode(err) == http.StatusForbidden:
		// Contributor lists too large for the API; the landing page sidebar
		// still shows the figure.
		return c.scrapeCount(ctx, rec)
	default:
		return err
	}
}

func (c *Contributors) scrapeCount(ctx context.Context, rec *record.Record) error {
	url := fmt.Sprintf("%s/%s/%s", c.WebBase, rec.Owner, rec.Name)
	resp, err := c.Client.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return fmt.Errorf("failed to read landing page for %s: %w", rec.Identity(), err)
	}

	rec.SetAttr(record.AttrContributors, parseContributorCount(string(body)))
	return nil
}

// contributorCounterPattern matches the Counter badge of the sidebar link to
// the contributors graph, e.g.
//
//	<a href="/owner/repo/graphs/contributors" ...>
//	  Contributors <span title="2,331" class="Counter">2,331</span>
//	</a>
//
// The figure may carry thousands separators and a trailing "+" on very large
// repositories.
var contributorCounterPattern = regexp.MustCompile(
	`(?s)href="[^"]*/graphs/contributors"[^>]*>.*?class="Counter[^"]*"[^>]*>\s*([0-9][0-9,]*\+?)\s*<`)

// parseContributorCount extracts the sidebar figure. A landing page without
// the figure belongs to a repository with a single contributor: the sidebar
// section is only rendered from two on.
func parseContributorCount(page string) int {
	m := contributorCounterPattern.FindStringSubmatch(page)
	if m == nil {
		return 1
	}
	digits := strings.TrimSuffix(strings.ReplaceAll(m[1], ",", ""), "+")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 1
	}
	return n
}
