package collector

import (
	"context"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Languages counts the languages present in the byte-count listing.
type Languages struct {
	*Deps
}

func (c *Languages) Name() string { return "languages" }

func (c *Languages) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrLanguagesCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "languages "+rec.Identity().String(), func() (*github.Response, error) {
				langs, resp, err := c.Client.GH.Repositories.ListLanguages(ctx, rec.Owner, rec.Name)
				if err != nil {
					return resp, err
				}
				count = len(langs)
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrLanguagesCount, count)
			return nil
		})
}

// Workflows counts the Actions workflows configured for the repository.
type Workflows struct {
	*Deps
}

func (c *Workflows) Name() string { return "workflows" }

func (c *Workflows) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrWorkflowsCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "workflows "+rec.Identity().String(), func() (*github.Response, error) {
				workflows, resp, err := c.Client.GH.Actions.ListWorkflows(ctx, rec.Owner, rec.Name,
					&github.ListOptions{PerPage: 1})
				if err != nil {
					return resp, err
				}
				count = workflows.GetTotalCount()
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrWorkflowsCount, count)
			return nil
		})
}

// Releases counts published releases via a per_page=1 listing.
type Releases struct {
	*Deps
}

func (c *Releases) Name() string { return "releases" }

func (c *Releases) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrReleasesCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "releases "+rec.Identity().String(), func() (*github.Response, error) {
				releases, resp, err := c.Client.GH.Repositories.ListReleases(ctx, rec.Owner, rec.Name,
					&github.ListOptions{PerPage: 1})
				if err != nil {
					return resp, err
				}
				count = listingCount(resp, len(releases))
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrReleasesCount, count)
			return nil
		})
}

// Environments counts deployment environments. It runs before Deployments,
// which skips its own call when there are no environments.
type Environments struct {
	*Deps
}

func (c *Environments) Name() string { return "environments" }

func (c *Environments) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrEnvironmentsCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "environments "+rec.Identity().String(), func() (*github.Response, error) {
				envs, resp, err := c.Client.GH.Repositories.ListEnvironments(ctx, rec.Owner, rec.Name,
					&github.EnvironmentListOptions{ListOptions: github.ListOptions{PerPage: 1}})
				if err != nil {
					return resp, err
				}
				count = envs.GetTotalCount()
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrEnvironmentsCount, count)
			return nil
		})
}

// Deployments records whether the repository has any deployments. Zero
// environments implies none without a call. A server-side failure on very
// large deployment sets counts as having deployments: the error itself is
// evidence of scale.
type Deployments struct {
	*Deps
}

func (c *Deployments) Name() string { return "deployments" }

func (c *Deployments) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrHasDeployments) },
		c.collectOne)
}

func (c *Deployments) collectOne(ctx context.Context, rec *record.Record) error {
	if envs, ok := rec.AttrInt(record.AttrEnvironmentsCount); ok && envs == 0 {
		rec.SetAttr(record.AttrHasDeployments, false)
		return nil
	}

	var has bool
	err := c.Client.Do(ctx, "deployments "+rec.Identity().String(), func() (*github.Response, error) {
		deployments, resp, err := c.Client.GH.Repositories.ListDeployments(ctx, rec.Owner, rec.Name,
			&github.DeploymentsListOptions{ListOptions: github.ListOptions{PerPage: 1}})
		if err != nil {
			return resp, err
		}
		has = len(deployments) > 0
		return resp, nil
	})

	switch {
	case err == nil:
		rec.SetAttr(record.AttrHasDeployments, has)
		return nil
	case ghclient.StatusCode(err) >= http.StatusInternalServerError:
		rec.SetAttr(record.AttrHasDeployments, true)
		return nil
	default:
		return err
	}
}

// Labels counts issue labels via a per_page=1 listing.
type Labels struct {
	*Deps
}

func (c *Labels) Name() string { return "labels" }

func (c *Labels) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrLabelsCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "labels "+rec.Identity().String(), func() (*github.Response, error) {
				labels, resp, err := c.Client.GH.Issues.ListLabels(ctx, rec.Owner, rec.Name,
					&github.ListOptions{PerPage: 1})
				if err != nil {
					return resp, err
				}
				count = listingCount(resp, len(labels))
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrLabelsCount, count)
			return nil
		})
}

// Milestones counts milestones in every state via a per_page=1 listing.
type Milestones struct {
	*Deps
}

func (c *Milestones) Name() string { return "milestones" }

func (c *Milestones) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrMilestonesCount) },
		func(ctx context.Context, rec *record.Record) error {
			var count int
			err := c.Client.Do(ctx, "milestones "+rec.Identity().String(), func() (*github.Response, error) {
				milestones, resp, err := c.Client.GH.Issues.ListMilestones(ctx, rec.Owner, rec.Name,
					&github.MilestoneListOptions{State: "all", ListOptions: github.ListOptions{PerPage: 1}})
				if err != nil {
					return resp, err
				}
				count = listingCount(resp, len(milestones))
				return resp, nil
			})
			if err != nil {
				return err
			}
			rec.SetAttr(record.AttrMilestonesCount, count)
			return nil
		})
}
