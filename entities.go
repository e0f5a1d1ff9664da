// Entity schemas: the three Record Format descriptors for accounts,
// repositories, and commits (spec.md §3 Data Model), plus the small
// in-memory structs an ingestion pass builds before encoding a row.
package ghcatalog

// AccountKind enumerates the three account kinds.
type AccountKind int32

const (
	KindHuman AccountKind = iota
	KindOrganisation
	KindBot
)

var accountKindLabels = []string{"Human", "Organisation", "Bot"}

// accountFormat is the textual (';'-separated) and binary record layout
// for an Account; CSV rows are parsed by csv.go, not through it. followers/following/friends are all stored as
// sorted int32 lists; friends is computed during ingestion, not read
// from CSV.
var accountFormat = NewFormat("account", ';').
	Int32("id").
	String("login").
	Enum("kind", accountKindLabels).
	Timestamp("created_at").
	Int32List("followers").
	Int32List("following").
	Int32List("friends").
	Int32("public_gists").
	Int32("public_repos")

const (
	acctFieldID = iota
	acctFieldLoginLen
	acctFieldLogin
	acctFieldKind
	acctFieldCreatedAt
	acctFieldFollowersLen
	acctFieldFollowers
	acctFieldFollowingLen
	acctFieldFollowing
	acctFieldFriendsLen
	acctFieldFriends
	acctFieldPublicGists
	acctFieldPublicRepos
)

// Account is the materialised form of one accountFormat record, used
// during CSV ingestion before it is written to the account record file.
type Account struct {
	ID          int32
	Login       string
	Kind        AccountKind
	CreatedAt   uint32 // packed Date
	Followers   []int32
	Following   []int32
	Friends     []int32
	PublicGists int32
	PublicRepos int32
}

// toRecord builds the binary/textual Record for a, computing Friends as
// followers ∩ following if the caller has not already done so.
// Followers/Following are not guaranteed sorted on input (CSV preserves
// whatever order the source listed them in), but sortedIntersectInt32
// requires ascending inputs and the record format stores all three lists
// sorted, so both are sorted here before use.
func (a Account) toRecord() Record {
	followers := sortInt32Asc(a.Followers)
	following := sortInt32Asc(a.Following)
	friends := a.Friends
	if friends == nil {
		friends = sortedIntersectInt32(followers, following)
	}
	rec := make(Record, len(accountFormat.Fields))
	rec[acctFieldID] = Value{Int32: a.ID}
	rec[acctFieldLogin] = Value{Str: a.Login}
	rec[acctFieldKind] = Value{Int32: int32(a.Kind)}
	rec[acctFieldCreatedAt] = Value{Int32: int32(a.CreatedAt)}
	rec[acctFieldFollowers] = Value{List: followers}
	rec[acctFieldFollowing] = Value{List: following}
	rec[acctFieldFriends] = Value{List: friends}
	rec[acctFieldPublicGists] = Value{Int32: a.PublicGists}
	rec[acctFieldPublicRepos] = Value{Int32: a.PublicRepos}
	accountFormat.setDerivedLength(rec, acctFieldLogin, int32(len(a.Login)))
	accountFormat.setDerivedLength(rec, acctFieldFollowers, int32(len(followers)))
	accountFormat.setDerivedLength(rec, acctFieldFollowing, int32(len(following)))
	accountFormat.setDerivedLength(rec, acctFieldFriends, int32(len(friends)))
	return rec
}

func accountFromRecord(rec Record) Account {
	return Account{
		ID:          rec[acctFieldID].Int32,
		Login:       rec[acctFieldLogin].Str,
		Kind:        AccountKind(rec[acctFieldKind].Int32),
		CreatedAt:   uint32(rec[acctFieldCreatedAt].Int32),
		Followers:   rec[acctFieldFollowers].List,
		Following:   rec[acctFieldFollowing].List,
		Friends:     rec[acctFieldFriends].List,
		PublicGists: rec[acctFieldPublicGists].Int32,
		PublicRepos: rec[acctFieldPublicRepos].Int32,
	}
}

// repoFormat is the record layout for a Repository. last_commit_at is
// filled in during ingestion (it is not a CSV column); language is
// lower-cased before being stored.
var repoFormat = NewFormat("repo", ';').
	Int32("id").
	Int32("owner_id").
	String("name").
	String("license").
	Bool("has_wiki").
	NullableString("description").
	String("language").
	String("default_branch").
	Timestamp("created_at").
	Timestamp("updated_at").
	Timestamp("last_commit_at").
	Int32("forks").
	Int32("open_issues").
	Int32("stargazers").
	Int32("size")

const (
	repoFieldID = iota
	repoFieldOwnerID
	repoFieldNameLen
	repoFieldName
	repoFieldLicenseLen
	repoFieldLicense
	repoFieldHasWiki
	repoFieldDescLen
	repoFieldDesc
	repoFieldLangLen
	repoFieldLang
	repoFieldBranchLen
	repoFieldBranch
	repoFieldCreatedAt
	repoFieldUpdatedAt
	repoFieldLastCommitAt
	repoFieldForks
	repoFieldOpenIssues
	repoFieldStargazers
	repoFieldSize
)

// Repository is the materialised form of one repoFormat record.
type Repository struct {
	ID             int32
	OwnerID        int32
	Name           string
	License        string
	HasWiki        bool
	Description    string
	HasDescription bool
	Language       string
	DefaultBranch  string
	CreatedAt      uint32
	UpdatedAt      uint32
	LastCommitAt   uint32
	Forks          int32
	OpenIssues     int32
	Stargazers     int32
	Size           int32
}

func (r Repository) toRecord() Record {
	rec := make(Record, len(repoFormat.Fields))
	rec[repoFieldID] = Value{Int32: r.ID}
	rec[repoFieldOwnerID] = Value{Int32: r.OwnerID}
	rec[repoFieldName] = Value{Str: r.Name}
	rec[repoFieldLicense] = Value{Str: r.License}
	rec[repoFieldHasWiki] = Value{Bool: r.HasWiki}
	rec[repoFieldDesc] = Value{Str: r.Description, Valid: r.HasDescription}
	rec[repoFieldLang] = Value{Str: r.Language}
	rec[repoFieldBranch] = Value{Str: r.DefaultBranch}
	rec[repoFieldCreatedAt] = Value{Int32: int32(r.CreatedAt)}
	rec[repoFieldUpdatedAt] = Value{Int32: int32(r.UpdatedAt)}
	rec[repoFieldLastCommitAt] = Value{Int32: int32(r.LastCommitAt)}
	rec[repoFieldForks] = Value{Int32: r.Forks}
	rec[repoFieldOpenIssues] = Value{Int32: r.OpenIssues}
	rec[repoFieldStargazers] = Value{Int32: r.Stargazers}
	rec[repoFieldSize] = Value{Int32: r.Size}
	repoFormat.setDerivedLength(rec, repoFieldName, int32(len(r.Name)))
	repoFormat.setDerivedLength(rec, repoFieldLicense, int32(len(r.License)))
	if r.HasDescription {
		repoFormat.setDerivedLength(rec, repoFieldDesc, int32(len(r.Description)))
	} else {
		repoFormat.setDerivedLength(rec, repoFieldDesc, -1)
	}
	repoFormat.setDerivedLength(rec, repoFieldLang, int32(len(r.Language)))
	repoFormat.setDerivedLength(rec, repoFieldBranch, int32(len(r.DefaultBranch)))
	return rec
}

func repoFromRecord(rec Record) Repository {
	return Repository{
		ID:             rec[repoFieldID].Int32,
		OwnerID:        rec[repoFieldOwnerID].Int32,
		Name:           rec[repoFieldName].Str,
		License:        rec[repoFieldLicense].Str,
		HasWiki:        rec[repoFieldHasWiki].Bool,
		Description:    rec[repoFieldDesc].Str,
		HasDescription: rec[repoFieldDesc].Valid,
		Language:       rec[repoFieldLang].Str,
		DefaultBranch:  rec[repoFieldBranch].Str,
		CreatedAt:      uint32(rec[repoFieldCreatedAt].Int32),
		UpdatedAt:      uint32(rec[repoFieldUpdatedAt].Int32),
		LastCommitAt:   uint32(rec[repoFieldLastCommitAt].Int32),
		Forks:          rec[repoFieldForks].Int32,
		OpenIssues:     rec[repoFieldOpenIssues].Int32,
		Stargazers:     rec[repoFieldStargazers].Int32,
		Size:           rec[repoFieldSize].Int32,
	}
}

// commitFormat is the record layout for a Commit. author_is_friend and
// committer_is_friend start false and are set in place during the
// post-ingest friendship annotation pass (catalog.go).
var commitFormat = NewFormat("commit", ';').
	Int32("repo_id").
	Int32("author_id").
	Int32("committer_id").
	Bool("author_is_friend").
	Bool("committer_is_friend").
	Timestamp("commit_at").
	NullableString("message")

const (
	commitFieldRepoID = iota
	commitFieldAuthorID
	commitFieldCommitterID
	commitFieldAuthorIsFriend
	commitFieldCommitterIsFriend
	commitFieldCommitAt
	commitFieldMessageLen
	commitFieldMessage
)

// Commit is the materialised form of one commitFormat record.
type Commit struct {
	RepoID            int32
	AuthorID          int32
	CommitterID       int32
	AuthorIsFriend    bool
	CommitterIsFriend bool
	CommitAt          uint32
	Message           string
	HasMessage        bool
}

func (c Commit) toRecord() Record {
	rec := make(Record, len(commitFormat.Fields))
	rec[commitFieldRepoID] = Value{Int32: c.RepoID}
	rec[commitFieldAuthorID] = Value{Int32: c.AuthorID}
	rec[commitFieldCommitterID] = Value{Int32: c.CommitterID}
	rec[commitFieldAuthorIsFriend] = Value{Bool: c.AuthorIsFriend}
	rec[commitFieldCommitterIsFriend] = Value{Bool: c.CommitterIsFriend}
	rec[commitFieldCommitAt] = Value{Int32: int32(c.CommitAt)}
	rec[commitFieldMessage] = Value{Str: c.Message, Valid: c.HasMessage}
	if c.HasMessage {
		commitFormat.setDerivedLength(rec, commitFieldMessage, int32(len(c.Message)))
	} else {
		commitFormat.setDerivedLength(rec, commitFieldMessage, -1)
	}
	return rec
}

func commitFromRecord(rec Record) Commit {
	return Commit{
		RepoID:            rec[commitFieldRepoID].Int32,
		AuthorID:          rec[commitFieldAuthorID].Int32,
		CommitterID:       rec[commitFieldCommitterID].Int32,
		AuthorIsFriend:    rec[commitFieldAuthorIsFriend].Bool,
		CommitterIsFriend: rec[commitFieldCommitterIsFriend].Bool,
		CommitAt:          uint32(rec[commitFieldCommitAt].Int32),
		Message:           rec[commitFieldMessage].Str,
		HasMessage:        rec[commitFieldMessage].Valid,
	}
}
