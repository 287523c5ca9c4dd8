package record

import (
	"time"

	"github.com/google/go-github/v57/github"
)

// Attribute keys populated by the collectors. A key that is present on a
// record (even with a false or zero value) has been collected; an absent key
// is still pending.
const (
	AttrContributors      = "contributors"
	AttrHasReadme         = "has_readme"
	AttrReadmeURL         = "readme_url"
	AttrReadmeSize        = "readme_size"
	AttrHasLicenseFile    = "has_license_file"
	AttrHasCodeOfConduct  = "has_code_of_conduct"
	AttrHasContributing   = "has_contributing"
	AttrHasIssueTemplate  = "has_issue_template"
	AttrHasPRTemplate     = "has_pull_request_template"
	AttrHasSecurityPolicy = "has_security_policy"
	AttrHasSupport        = "has_support"
	AttrHasFunding        = "has_funding"
	AttrHasCodeowners     = "has_codeowners"
	AttrHasChangelog      = "has_changelog"
	AttrHasCodespaces     = "has_codespaces"
	AttrLanguagesCount    = "languages_count"
	AttrWorkflowsCount    = "workflows_count"
	AttrReleasesCount     = "releases_count"
	AttrEnvironmentsCount = "environments_count"
	AttrHasDeployments    = "has_deployments"
	AttrLabelsCount       = "labels_count"
	AttrMilestonesCount   = "milestones_count"
)

// Identity is the unique key of a repository.
type Identity struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (id Identity) String() string {
	return id.Owner + "/" + id.Name
}

// Record accumulates the discovery snapshot of one repository plus every
// attribute collected for it so far. Records are created at discovery,
// enriched in place by the collectors, and persisted in the checkpoint
// between runs.
type Record struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	DefaultBranch string    `json:"default_branch"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
	Size          int       `json:"size"`
	Stars         int       `json:"stars"`
	Watchers      int       `json:"watchers"`
	Forks         int       `json:"forks"`
	OpenIssues    int       `json:"open_issues"`
	Language      string    `json:"language,omitempty"`
	License       string    `json:"license,omitempty"`
	Topics        []string  `json:"topics,omitempty"`
	HasIssues     bool      `json:"has_issues"`
	HasProjects   bool      `json:"has_projects"`
	HasDownloads  bool      `json:"has_downloads"`
	HasWiki       bool      `json:"has_wiki"`
	HasPages      bool      `json:"has_pages"`

	// Attrs holds the incrementally collected attributes.
	Attrs map[string]any `json:"attrs"`
}

// FromGitHub builds a discovery-snapshot record from a search result.
func FromGitHub(repo *github.Repository) *Record {
	return &Record{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		DefaultBranch: repo.GetDefaultBranch(),
		Description:   repo.GetDescription(),
		CreatedAt:     repo.GetCreatedAt().Time,
		UpdatedAt:     repo.GetUpdatedAt().Time,
		PushedAt:      repo.GetPushedAt().Time,
		Size:          repo.GetSize(),
		Stars:         repo.GetStargazersCount(),
		Watchers:      repo.GetWatchersCount(),
		Forks:         repo.GetForksCount(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		Language:      repo.GetLanguage(),
		License:       repo.GetLicense().GetSPDXID(),
		Topics:        repo.Topics,
		HasIssues:     repo.GetHasIssues(),
		HasProjects:   repo.GetHasProjects(),
		HasDownloads:  repo.GetHasDownloads(),
		HasWiki:       repo.GetHasWiki(),
		HasPages:      repo.GetHasPages(),
	}
}

// Identity returns the deduplication key of the record.
func (r *Record) Identity() Identity {
	return Identity{Owner: r.Owner, Name: r.Name}
}

// Has reports whether the attribute has been collected. Presence of the key
// signals done regardless of the stored value.
func (r *Record) Has(key string) bool {
	_, ok := r.Attrs[key]
	return ok
}

// HasAll reports whether every given attribute has been collected.
func (r *Record) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !r.Has(k) {
			return false
		}
	}
	return true
}

// SetAttr stores a collected attribute value.
func (r *Record) SetAttr(key string, value any) {
	if r.Attrs == nil {
		r.Attrs = make(map[string]any)
	}
	r.Attrs[key] = value
}

// AttrInt returns a numeric attribute. JSON round-trips numbers as float64,
// so both representations are accepted.
func (r *Record) AttrInt(key string) (int, bool) {
	v, ok := r.Attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// AttrBool returns a boolean attribute.
func (r *Record) AttrBool(key string) (bool, bool) {
	v, ok := r.Attrs[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// AttrString returns a string attribute.
func (r *Record) AttrString(key string) (string, bool) {
	v, ok := r.Attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Valid reports whether the record can be scored: a repository without a
// determinable contributor count is excluded from the dataset and from
// further collection work.
func (r *Record) Valid() bool {
	return r.Has(AttrContributors)
}

// Merge combines a prior checkpoint with freshly discovered records,
// deduplicating by identity. The first occurrence wins: discovered entries
// carry only the discovery snapshot, so an existing record with collected
// attributes is never replaced.
func Merge(existing, discovered []*Record) []*Record {
	merged := make([]*Record, 0, len(existing)+len(discovered))
	seen := make(map[Identity]bool, len(existing)+len(discovered))
	for _, r := range existing {
		if seen[r.Identity()] {
			continue
		}
		seen[r.Identity()] = true
		merged = append(merged, r)
	}
	for _, r := range discovered {
		if seen[r.Identity()] {
			continue
		}
		seen[r.Identity()] = true
		merged = append(merged, r)
	}
	return merged
}

// FilterValid splits records into scorable ones and those lacking a
// contributor count. Dropped records are simply discarded; a later
// re-discovery recreates them pending a fresh contributor check.
func FilterValid(records []*Record) (valid, dropped []*Record) {
	for _, r := range records {
		if r.Valid() {
			valid = append(valid, r)
		} else {
			dropped = append(dropped, r)
		}
	}
	return valid, dropped
}
