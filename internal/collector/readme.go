package collector

import (
	"context"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/klimeurt/repohealth-collector/internal/ghclient"
	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Readme resolves whether the repository has a README and caches its raw
// download URL for the size measurement that follows in the sequence.
type Readme struct {
	*Deps
}

func (c *Readme) Name() string { return "readme" }

func (c *Readme) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.HasAll(record.AttrHasReadme, record.AttrReadmeURL) },
		c.collectOne)
}

func (c *Readme) collectOne(ctx context.Context, rec *record.Record) error {
	var downloadURL string
	err := c.Client.Do(ctx, "readme "+rec.Identity().String(), func() (*github.Response, error) {
		content, resp, err := c.Client.GH.Repositories.GetReadme(ctx, rec.Owner, rec.Name, nil)
		if err != nil {
			return resp, err
		}
		downloadURL = content.GetDownloadURL()
		return resp, nil
	})

	switch {
	case err == nil:
		rec.SetAttr(record.AttrHasReadme, true)
		rec.SetAttr(record.AttrReadmeURL, downloadURL)
		return nil
	case ghclient.IsNotFound(err):
		rec.SetAttr(record.AttrHasReadme, false)
		rec.SetAttr(record.AttrReadmeURL, "")
		return nil
	default:
		return err
	}
}

// ReadmeSize measures the README through a HEAD on the resolved raw URL.
// Any failure here degrades to size zero rather than aborting the batch.
type ReadmeSize struct {
	*Deps
}

func (c *ReadmeSize) Name() string { return "readme_size" }

func (c *ReadmeSize) Collect(ctx context.Context, records []*record.Record) error {
	return eachPending(ctx, records,
		func(r *record.Record) bool { return !r.Has(record.AttrReadmeSize) },
		c.collectOne)
}

func (c *ReadmeSize) collectOne(ctx context.Context, rec *record.Record) error {
	url, _ := rec.AttrString(record.AttrReadmeURL)
	if url == "" {
		rec.SetAttr(record.AttrReadmeSize, 0)
		return nil
	}

	size := 0
	resp, err := c.Client.Head(ctx, url)
	if err == nil && resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		size = int(resp.ContentLength)
	}
	rec.SetAttr(record.AttrReadmeSize, size)
	return nil
}
