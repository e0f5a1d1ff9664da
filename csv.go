// CSV ingestion: reads the three semicolon-delimited source files into
// entity structs. The external schema is its own thing, separate from
// the Record Format descriptors in entities.go (those drive binary
// storage, not CSV column layout) — grounded on the csv column order
// the original GithubManager project's getUserFormat/getRepoFormat/
// getCommitFormat declare (account rows additionally carry an explicit
// followers/following count column immediately before each id-list
// column, validated against the list's own length and then discarded).
package ghcatalog

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
)

// csvRows wraps a semicolon-delimited file, skipping its header line.
type csvRows struct {
	f *os.File
	r *csv.Reader
}

func openCSVRows(path string) (*csvRows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if _, err := r.Read(); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return &csvRows{f: f, r: r}, nil
}

// next returns the next data row, or ok=false at end of file.
func (c *csvRows) next() (cols []string, ok bool, err error) {
	cols, err = c.r.Read()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cols, true, nil
}

func (c *csvRows) close() error { return c.f.Close() }

var accountKindTokens = map[string]AccountKind{
	"User":         KindHuman,
	"Organization": KindOrganisation,
	"Bot":          KindBot,
}

// parseAccountRow parses one accounts.csv row: id;login;kind;created_at;
// followers;followers_list;following;following_list;public_gists;
// public_repos. The explicit followers/following counts are validated
// against their list's length and then dropped (Account stores only the
// lists; friends is computed by the caller).
func parseAccountRow(cols []string) (Account, bool) {
	if len(cols) != 10 {
		return Account{}, false
	}
	id, ok := parseInt32(cols[0])
	if !ok {
		return Account{}, false
	}
	login := cols[1]
	if login == "" {
		return Account{}, false
	}
	kind, ok := accountKindTokens[cols[2]]
	if !ok {
		return Account{}, false
	}
	created, ok := ParseDate(cols[3])
	if !ok {
		return Account{}, false
	}
	followersCount, ok := parseInt32(cols[4])
	if !ok {
		return Account{}, false
	}
	followers, ok := parseInt32List(cols[5])
	if !ok || int(followersCount) != len(followers) {
		return Account{}, false
	}
	followingCount, ok := parseInt32(cols[6])
	if !ok {
		return Account{}, false
	}
	following, ok := parseInt32List(cols[7])
	if !ok || int(followingCount) != len(following) {
		return Account{}, false
	}
	gists, ok := parseInt32(cols[8])
	if !ok {
		return Account{}, false
	}
	repos, ok := parseInt32(cols[9])
	if !ok {
		return Account{}, false
	}
	return Account{
		ID:          id,
		Login:       login,
		Kind:        kind,
		CreatedAt:   created.Pack(),
		Followers:   followers,
		Following:   following,
		PublicGists: gists,
		PublicRepos: repos,
	}, true
}

// parseRepoRow parses one repositories.csv row: id;owner_id;name;license;
// has_wiki;description;language;default_branch;created_at;updated_at;
// forks;open_issues;stargazers;size. last_commit_at is left zero; the
// caller fills it in from the commit scan.
func parseRepoRow(cols []string) (Repository, bool) {
	if len(cols) != 14 {
		return Repository{}, false
	}
	id, ok := parseInt32(cols[0])
	if !ok {
		return Repository{}, false
	}
	ownerID, ok := parseInt32(cols[1])
	if !ok {
		return Repository{}, false
	}
	name := cols[2]
	if name == "" {
		return Repository{}, false
	}
	license := cols[3]
	if license == "" {
		return Repository{}, false
	}
	hasWiki, ok := parseBool(cols[4])
	if !ok {
		return Repository{}, false
	}
	description := cols[5]
	hasDescription := description != ""
	language := strings.ToLower(cols[6])
	if language == "" {
		return Repository{}, false
	}
	branch := cols[7]
	if branch == "" {
		return Repository{}, false
	}
	createdAt, ok := ParseDate(cols[8])
	if !ok {
		return Repository{}, false
	}
	updatedAt, ok := ParseDate(cols[9])
	if !ok {
		return Repository{}, false
	}
	forks, ok := parseInt32(cols[10])
	if !ok {
		return Repository{}, false
	}
	openIssues, ok := parseInt32(cols[11])
	if !ok {
		return Repository{}, false
	}
	stargazers, ok := parseInt32(cols[12])
	if !ok {
		return Repository{}, false
	}
	size, ok := parseInt32(cols[13])
	if !ok {
		return Repository{}, false
	}
	return Repository{
		ID:             id,
		OwnerID:        ownerID,
		Name:           name,
		License:        license,
		HasWiki:        hasWiki,
		Description:    description,
		HasDescription: hasDescription,
		Language:       language,
		DefaultBranch:  branch,
		CreatedAt:      createdAt.Pack(),
		UpdatedAt:      updatedAt.Pack(),
		Forks:          forks,
		OpenIssues:     openIssues,
		Stargazers:     stargazers,
		Size:           size,
	}, true
}

// parseCommitRow parses one commits.csv row: repo_id;author_id;
// committer_id;commit_at;message. Friendship bits start false; they are
// set during post-ingest annotation.
func parseCommitRow(cols []string) (Commit, bool) {
	if len(cols) != 5 {
		return Commit{}, false
	}
	repoID, ok := parseInt32(cols[0])
	if !ok {
		return Commit{}, false
	}
	authorID, ok := parseInt32(cols[1])
	if !ok {
		return Commit{}, false
	}
	committerID, ok := parseInt32(cols[2])
	if !ok {
		return Commit{}, false
	}
	commitAt, ok := ParseDate(cols[3])
	if !ok {
		return Commit{}, false
	}
	message := cols[4]
	return Commit{
		RepoID:      repoID,
		AuthorID:    authorID,
		CommitterID: committerID,
		CommitAt:    commitAt.Pack(),
		Message:     message,
		HasMessage:  message != "",
	}, true
}
