package collector

import (
	"context"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Community reads the community-profile metrics bundle, which reports
// file-presence booleans for the canonical health files in one call. When
// the bundle is unavailable the same facts are established with existence
// probes against the fallback search paths.
type Community struct {
	*Deps
}

var communityAttrs = []string{
	record.AttrHasCodeOfConduct,
	record.AttrHasContributing,
	record.AttrHasIssueTemplate,
	record.AttrHasPRTemplate,
	record.AttrHasLicenseFile,
}

func (c *Community) Name() string { return "community" }

func (c *Community) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.HasAll(communityAttrs...) },
		c.collectOne)
}

func (c *Community) collectOne(ctx context.Context, rec *record.Record) error {
	var files *github.CommunityHealthFiles
	err := c.Client.Do(ctx, "community "+rec.Identity().String(), func() (*github.Response, error) {
		metrics, resp, err := c.Client.GH.Repositories.GetCommunityHealthMetrics(ctx, rec.Owner, rec.Name)
		if err != nil {
			return resp, err
		}
		files = metrics.GetFiles()
		return resp, nil
	})

	switch {
	case err == nil && files != nil:
		rec.SetAttr(record.AttrHasCodeOfConduct, files.CodeOfConduct != nil || files.CodeOfConductFile != nil)
		rec.SetAttr(record.AttrHasContributing, files.Contributing != nil)
		rec.SetAttr(record.AttrHasIssueTemplate, files.IssueTemplate != nil)
		rec.SetAttr(record.AttrHasPRTemplate, files.PullRequestTemplate != nil)
		rec.SetAttr(record.AttrHasLicenseFile, files.License != nil)
		return nil
	case err == nil || ghclient.IsNotFound(err):
		return c.probeFallback(ctx, rec)
	default:
		return err
	}
}

func (c *Community) probeFallback(ctx context.Context, rec *record.Record) error {
	probes := []struct {
		attr  string
		names []string
	}{
		{record.AttrHasCodeOfConduct, []string{"CODE_OF_CONDUCT.md", "CODE_OF_CONDUCT"}},
		{record.AttrHasContributing, []string{"CONTRIBUTING.md", "CONTRIBUTING"}},
		{record.AttrHasIssueTemplate, []string{"ISSUE_TEMPLATE.md", "ISSUE_TEMPLATE/config.yml"}},
		{record.AttrHasPRTemplate, []string{"PULL_REQUEST_TEMPLATE.md", "pull_request_template.md"}},
		{record.AttrHasLicenseFile, []string{"LICENSE", "LICENSE.md", "LICENSE.txt", "COPYING"}},
	}

	for _, p := range probes {
		if rec.Has(p.attr) {
			continue
		}
		found, err := c.Prober.Exists(ctx, c.fileCandidates(rec, p.names...))
		if err != nil {
			return err
		}
		rec.SetAttr(p.attr, found)
	}
	return nil
}
