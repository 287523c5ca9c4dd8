package collector

import (
	"context"

	"github.com/klimeurt/repohealth-collector/internal/record"
)

// HealthFiles establishes presence of ancillary community files that no
// structured endpoint reports. Each file is probed across its fallback
// search paths; a probe failure is batch-fatal because a silently wrong
// false would be cached as collected.
type HealthFiles struct {
	*Deps
}

var healthFileProbes = []struct {
	attr  string
	names []string
}{
	{record.AttrHasSecurityPolicy, []string{"SECURITY.md", "SECURITY"}},
	{record.AttrHasSupport, []string{"SUPPORT.md", "SUPPORT"}},
	{record.AttrHasFunding, []string{"FUNDING.yml", "FUNDING.yaml"}},
	{record.AttrHasCodeowners, []string{"CODEOWNERS"}},
	{record.AttrHasChangelog, []string{"CHANGELOG.md", "CHANGELOG", "CHANGELOG.txt"}},
	{record.AttrHasCodespaces, []string{".devcontainer/devcontainer.json", ".devcontainer.json"}},
}

var healthFileAttrs = func() []string {
	attrs := make([]string, len(healthFileProbes))
	for i, p := range healthFileProbes {
		attrs[i] = p.attr
	}
	return attrs
}()

func (c *HealthFiles) Name() string { return "healthfiles" }

func (c *HealthFiles) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.HasAll(healthFileAttrs...) },
		c.collectOne)
}

func (c *HealthFiles) collectOne(ctx context.Context, rec *record.Record) error {
	for _, p := range healthFileProbes {
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
