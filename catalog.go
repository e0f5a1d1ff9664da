// Catalog: composes the Record Format, Block Cache, and Indexer into seven
// persistent indexes over three CSV inputs, plus a small set of
// precomputed statistics (spec.md §4.5). Build runs the fresh-ingest
// pipeline; Load reopens a previously persisted catalog after checking
// every artefact is present and the inputs have not changed since.
package ghcatalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// FileID assignments. The Cache multiplexes every catalog artefact that
// needs positional reads over these ids; the manifest and the lockfile
// are read/written directly since neither is ever addressed by offset.
const (
	fileUsers FileID = iota + 1
	fileRepos
	fileCommits
	fileUsersByID
	fileReposByID
	fileReposByLastCommit
	fileReposByLanguage
	fileReposByLanguageValues
	fileCommitsByRepo
	fileCommitsByRepoValues
	fileCommitsByDate
	fileCollaborators
	fileCollaboratorsValues
)

const (
	usersFileName                 = "users.dat"
	reposFileName                 = "repos.dat"
	commitsFileName               = "commits.dat"
	usersByIDFileName             = "usersByID.indx"
	reposByIDFileName             = "reposByID.indx"
	reposByLastCommitFileName     = "reposByLastCommit.indx"
	reposByLanguageFileName       = "reposByLanguage.indx"
	reposByLanguageValuesFileName = "reposByLanguage.dat"
	commitsByRepoFileName         = "commitsByRepo.indx"
	commitsByRepoValuesFileName   = "commitsByRepo.dat"
	commitsByDateFileName         = "commitsByDate.indx"
	collaboratorsFileName         = "collaborators.indx"
	collaboratorsValuesFileName   = "collaborators.dat"
	manifestFileName              = "staticQueries.dat"
	lockFileName                  = ".catalog.lock"
)

// accountsCSVName, reposCSVName, commitsCSVName are the three input file
// names read from a Build's inputDir.
const (
	accountsCSVName = "accounts.csv"
	reposCSVName    = "repositories.csv"
	commitsCSVName  = "commits.csv"
)

// manifest is the small scalar summary persisted as staticQueries.dat: a
// build fingerprint (for Load's staleness check), the per-kind account
// counts query 1 needs, the repo and commit totals, and the three
// statistics (queries 2-4) answered in constant time.
type manifest struct {
	Fingerprint uint64

	HumanCount        int64
	OrganisationCount int64
	BotCount          int64

	RepoCount   int64
	CommitCount int64

	MeanCollaborators  float64
	ReposWithBots      int64
	MeanCommitsPerUser float64
}

// Catalog is the built, queryable aggregate of the three datasets and
// their seven derived indexes. It exclusively owns the Cache and the
// three entity record files; each Indexer borrows whatever key/value
// file it needs and owns only its own index (and, once grouped, values)
// file.
type Catalog struct {
	dir string
	cfg Config

	cache *Cache
	lock  *fileLock
	lockF *os.File

	usersFile   *os.File
	reposFile   *os.File
	commitsFile *os.File

	usersByID         *Indexer
	reposByID         *Indexer
	reposByLastCommit *Indexer
	reposByLanguage   *Indexer
	commitsByRepo     *Indexer
	commitsByDate     *Indexer
	collaborators     *Indexer

	userBloom *idBloom
	repoBloom *idBloom

	manifest manifest
}

func artefactPaths(dir string) []string {
	names := []string{
		usersFileName, reposFileName, commitsFileName,
		usersByIDFileName, reposByIDFileName, reposByLastCommitFileName,
		reposByLanguageFileName, reposByLanguageValuesFileName,
		commitsByRepoFileName, commitsByRepoValuesFileName,
		commitsByDateFileName,
		collaboratorsFileName, collaboratorsValuesFileName,
		manifestFileName,
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths
}

// entityWriter appends whole binary records to a record file, bypassing
// the Cache (mirroring the Indexer's own direct-append Insert) since an
// ingest pass writes strictly sequentially and never needs read-back
// through a page.
type entityWriter struct {
	file *os.File
	tail int64
}

func newEntityWriter(f *os.File) *entityWriter { return &entityWriter{file: f} }

func (w *entityWriter) append(data []byte) (int64, error) {
	off := w.tail
	if _, err := w.file.WriteAt(data, off); err != nil {
		return 0, err
	}
	w.tail += int64(len(data))
	return off, nil
}

// sortTempDir returns (and creates) a private scratch directory for one
// index's external merge sort, so that concurrently sorted indexes never
// collide on externalMergeSort's fixed "merged.idx" output name.
func sortTempDir(dir, name string) (string, error) {
	tmp := filepath.Join(dir, "tmp", name)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", err
	}
	return tmp, nil
}

func createEmptyIndex(cache *Cache, dir string, id FileID, name string, cmp Comparator, cfg Config) (*Indexer, error) {
	tmp, err := sortTempDir(dir, name)
	if err != nil {
		return nil, err
	}
	return CreateIndex(cache, id, filepath.Join(dir, name+".indx"), tmp, cmp, cfg)
}

// checkReference returns ErrMissingReference if id is not a key of valid,
// nil otherwise. The caller drops the referencing row on a non-nil
// return; the error never propagates out of build.
func checkReference(id int32, valid map[int32]struct{}) error {
	if _, ok := valid[id]; !ok {
		return ErrMissingReference
	}
	return nil
}

// Build ingests the three CSVs under inputDir and persists a fresh
// catalog under dir, per spec.md §4.5's seven-step build protocol.
func Build(dir, inputDir string, cfg Config) (*Catalog, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	lockF, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	lock := &fileLock{}
	lock.setFile(lockF)
	if err := lock.Lock(LockExclusive); err != nil {
		lockF.Close()
		return nil, err
	}

	cat, err := build(dir, inputDir, cfg, lock, lockF)
	if err != nil {
		lock.Unlock()
		lockF.Close()
		return nil, err
	}
	return cat, nil
}

func build(dir, inputDir string, cfg Config, lock *fileLock, lockF *os.File) (*Catalog, error) {
	cache, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}

	usersFile, err := os.Create(filepath.Join(dir, usersFileName))
	if err != nil {
		return nil, err
	}
	reposFile, err := os.Create(filepath.Join(dir, reposFileName))
	if err != nil {
		return nil, err
	}
	commitsFile, err := os.Create(filepath.Join(dir, commitsFileName))
	if err != nil {
		return nil, err
	}
	cache.Register(fileUsers, usersFile)
	cache.Register(fileRepos, reposFile)
	cache.Register(fileCommits, commitsFile)

	usersByID, err := createEmptyIndex(cache, dir, fileUsersByID, "usersByID", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	usersByID.WithValueFile(fileUsers)

	reposByID, err := createEmptyIndex(cache, dir, fileReposByID, "reposByID", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	reposByID.WithValueFile(fileRepos)

	reposByLastCommit, err := createEmptyIndex(cache, dir, fileReposByLastCommit, "reposByLastCommit", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	reposByLastCommit.WithValueFile(fileRepos)

	reposByLanguage, err := createEmptyIndex(cache, dir, fileReposByLanguage, "reposByLanguage", CompareString, cfg)
	if err != nil {
		return nil, err
	}
	reposByLanguage.WithKeySource(fileRepos).WithValueFile(fileRepos)

	commitsByRepo, err := createEmptyIndex(cache, dir, fileCommitsByRepo, "commitsByRepo", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	commitsByRepo.WithValueFile(fileCommits)

	commitsByDate, err := createEmptyIndex(cache, dir, fileCommitsByDate, "commitsByDate", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	commitsByDate.WithValueFile(fileCommits)

	collaborators, err := createEmptyIndex(cache, dir, fileCollaborators, "collaborators", CompareDirect, cfg)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		dir: dir, cfg: cfg,
		cache: cache, lock: lock, lockF: lockF,
		usersFile: usersFile, reposFile: reposFile, commitsFile: commitsFile,
		usersByID: usersByID, reposByID: reposByID,
		reposByLastCommit: reposByLastCommit, reposByLanguage: reposByLanguage,
		commitsByRepo: commitsByRepo, commitsByDate: commitsByDate,
		collaborators: collaborators,
		userBloom:     newIDBloom(), repoBloom: newIDBloom(),
	}

	validUserIDs := make(map[int32]struct{})
	writer := newEntityWriter(usersFile)

	cfg.report("ingest: parsing accounts")
	accRows, err := openCSVRows(filepath.Join(inputDir, accountsCSVName))
	if err != nil {
		return nil, err
	}
	for {
		cols, ok, err := accRows.next()
		if err != nil {
			accRows.close()
			return nil, err
		}
		if !ok {
			break
		}
		acct, ok := parseAccountRow(cols)
		if !ok {
			continue
		}
		rec := acct.toRecord()
		off, err := writer.append(accountFormat.WriteBinary(rec))
		if err != nil {
			accRows.close()
			return nil, err
		}
		if err := usersByID.Insert(uint64(acct.ID), uint64(off)); err != nil {
			accRows.close()
			return nil, err
		}
		validUserIDs[acct.ID] = struct{}{}
		switch acct.Kind {
		case KindHuman:
			cat.manifest.HumanCount++
		case KindOrganisation:
			cat.manifest.OrganisationCount++
		case KindBot:
			cat.manifest.BotCount++
		}
	}
	accRows.close()
	cache.RefreshFile(fileUsers)

	// Step 2: one pass over repos CSV to collect valid repo ids.
	cfg.report("ingest: scanning repository ids")
	validRepoIDs := make(map[int32]struct{})
	{
		rows, err := openCSVRows(filepath.Join(inputDir, reposCSVName))
		if err != nil {
			return nil, err
		}
		for {
			cols, ok, err := rows.next()
			if err != nil {
				rows.close()
				return nil, err
			}
			if !ok {
				break
			}
			repo, ok := parseRepoRow(cols)
			if !ok {
				continue
			}
			validRepoIDs[repo.ID] = struct{}{}
		}
		rows.close()
	}

	// Step 3: scan commits CSV, dropping rows referencing unknown ids,
	// writing survivors, and tracking each repo's max commit date. The
	// per-commit tuples are kept in memory instead of re-reading the
	// just-written commit record file for step 5 below — removing a data
	// dependency on a second decode pass over commits.dat without
	// changing what step 5 computes.
	type commitMeta struct {
		offset      int64
		repoID      int32
		authorID    int32
		committerID int32
		commitAt    uint32
	}
	var commits []commitMeta
	repoLastCommit := make(map[int32]uint32)

	cfg.report("ingest: scanning commits")
	commitWriter := newEntityWriter(commitsFile)
	{
		rows, err := openCSVRows(filepath.Join(inputDir, commitsCSVName))
		if err != nil {
			return nil, err
		}
		for {
			cols, ok, err := rows.next()
			if err != nil {
				rows.close()
				return nil, err
			}
			if !ok {
				break
			}
			c, ok := parseCommitRow(cols)
			if !ok {
				continue
			}
			if checkReference(c.RepoID, validRepoIDs) != nil {
				continue
			}
			if checkReference(c.AuthorID, validUserIDs) != nil {
				continue
			}
			if checkReference(c.CommitterID, validUserIDs) != nil {
				continue
			}
			off, err := commitWriter.append(commitFormat.WriteBinary(c.toRecord()))
			if err != nil {
				rows.close()
				return nil, err
			}
			commits = append(commits, commitMeta{off, c.RepoID, c.AuthorID, c.CommitterID, c.CommitAt})
			if prev, ok := repoLastCommit[c.RepoID]; !ok || c.CommitAt > prev {
				repoLastCommit[c.RepoID] = c.CommitAt
			}
		}
		rows.close()
	}
	cache.RefreshFile(fileCommits)
	cat.manifest.CommitCount = int64(len(commits))

	// Step 4: parse repos CSV again, keeping only rows whose owner
	// exists and which have at least one observed commit.
	cfg.report("ingest: writing repositories")
	repoWriter := newEntityWriter(reposFile)
	{
		rows, err := openCSVRows(filepath.Join(inputDir, reposCSVName))
		if err != nil {
			return nil, err
		}
		for {
			cols, ok, err := rows.next()
			if err != nil {
				rows.close()
				return nil, err
			}
			if !ok {
				break
			}
			repo, ok := parseRepoRow(cols)
			if !ok {
				continue
			}
			if checkReference(repo.OwnerID, validUserIDs) != nil {
				continue
			}
			lastCommit, ok := repoLastCommit[repo.ID]
			if !ok {
				continue
			}
			repo.LastCommitAt = lastCommit
			rec := repo.toRecord()
			off, err := repoWriter.append(repoFormat.WriteBinary(rec))
			if err != nil {
				rows.close()
				return nil, err
			}
			if err := reposByID.Insert(uint64(repo.ID), uint64(off)); err != nil {
				rows.close()
				return nil, err
			}
			if err := reposByLastCommit.Insert(uint64(repo.LastCommitAt), uint64(off)); err != nil {
				rows.close()
				return nil, err
			}
			langKey := off + int64(repoFormat.FieldOffset(repoFieldLangLen, rec))
			if err := reposByLanguage.Insert(uint64(langKey), uint64(off)); err != nil {
				rows.close()
				return nil, err
			}
			cat.manifest.RepoCount++
		}
		rows.close()
	}
	cache.RefreshFile(fileRepos)

	// Step 5: from the in-memory commit tuples, populate commitsByDate,
	// commitsByRepo, and collaborators (author and committer as
	// separate entries under the same repo key).
	cfg.report("ingest: indexing commits")
	for _, c := range commits {
		if err := commitsByDate.Insert(uint64(c.commitAt), uint64(c.offset)); err != nil {
			return nil, err
		}
		if err := commitsByRepo.Insert(uint64(c.repoID), uint64(c.offset)); err != nil {
			return nil, err
		}
		if err := collaborators.Insert(uint64(c.repoID), uint64(c.authorID)); err != nil {
			return nil, err
		}
		if err := collaborators.Insert(uint64(c.repoID), uint64(c.committerID)); err != nil {
			return nil, err
		}
	}

	// Step 6: sort every index; group the three that need it. At most
	// cfg.Workers (default 2) run concurrently.
	cfg.report("ingest: sorting and grouping indexes")
	type sortTask struct {
		ix        *Indexer
		groupID   FileID
		groupPath string
		dedup     bool
		grouped   bool
	}
	tasks := []sortTask{
		{ix: usersByID},
		{ix: reposByID},
		{ix: reposByLastCommit},
		{ix: reposByLanguage, groupID: fileReposByLanguageValues, groupPath: filepath.Join(dir, reposByLanguageValuesFileName), dedup: false, grouped: true},
		{ix: commitsByRepo, groupID: fileCommitsByRepoValues, groupPath: filepath.Join(dir, commitsByRepoValuesFileName), dedup: false, grouped: true},
		{ix: commitsByDate},
		{ix: collaborators, groupID: fileCollaboratorsValues, groupPath: filepath.Join(dir, collaboratorsValuesFileName), dedup: true, grouped: true},
	}
	err = RunPool(len(tasks), cfg.Workers, func(i int) error {
		t := tasks[i]
		if err := t.ix.Sort(cache); err != nil {
			return err
		}
		if t.grouped {
			if err := t.ix.Group(cache, t.groupID, t.groupPath, t.dedup); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Populate blooms for the lookup helpers; the static queries pass
	// below already resolves ids through them.
	if err := populateBloom(usersByID, cat.userBloom); err != nil {
		return nil, err
	}
	if err := populateBloom(reposByID, cat.repoBloom); err != nil {
		return nil, err
	}

	// Step 7: static queries pass.
	cfg.report("ingest: running static queries")
	if err := cat.runStaticQueries(); err != nil {
		return nil, err
	}

	fp, err := computeFingerprint([]string{
		filepath.Join(inputDir, accountsCSVName),
		filepath.Join(inputDir, reposCSVName),
		filepath.Join(inputDir, commitsCSVName),
	}, cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	cat.manifest.Fingerprint = fp

	if err := cat.persistManifest(); err != nil {
		return nil, err
	}
	if err := cache.FlushAll(); err != nil {
		return nil, err
	}
	return cat, nil
}

func populateBloom(ix *Indexer, b *idBloom) error {
	n := ix.ElemNo()
	for i := int64(0); i < n; i++ {
		k, err := ix.KeyAt(i)
		if err != nil {
			return err
		}
		b.Add(int32(k))
	}
	return nil
}

// runStaticQueries implements spec.md §4.5 step 7: walk commitsByRepo in
// group (sorted key) order, annotate each commit's friendship bits via a
// Lazy, and accumulate the statistics persisted in the manifest.
func (c *Catalog) runStaticQueries() error {
	repoLazy, err := NewLazy(c.cache, fileRepos, 0, repoFormat)
	if err != nil {
		return err
	}
	userLazy, err := NewLazy(c.cache, fileUsers, 0, accountFormat)
	if err != nil {
		return err
	}
	ownerLazy, err := NewLazy(c.cache, fileUsers, 0, accountFormat)
	if err != nil {
		return err
	}
	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}

	n := c.commitsByRepo.ElemNo()
	var totalCollaborators int64
	var reposSeen int64

	for i := int64(0); i < n; i++ {
		repoKey, err := c.commitsByRepo.KeyAt(i)
		if err != nil {
			return err
		}
		blockOffset, err := c.commitsByRepo.ValueAt(i)
		if err != nil {
			return err
		}
		repoID := int32(repoKey)

		repoOff, found, err := c.lookupRepoOffset(repoID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		repoLazy.retarget(fileRepos, repoOff)
		ownerVal, err := repoLazy.Get(repoFieldOwnerID)
		if err != nil {
			return err
		}
		ownerOff, found, err := c.lookupUserOffset(ownerVal.Int32)
		if err != nil {
			return err
		}
		var friends []int32
		if found {
			ownerLazy.retarget(fileUsers, ownerOff)
			friendsVal, err := ownerLazy.Get(acctFieldFriends)
			if err != nil {
				return err
			}
			friends = friendsVal.List
		}

		size, err := c.commitsByRepo.GroupSize(int64(blockOffset))
		if err != nil {
			return err
		}
		hasBot := false
		for k := int32(0); k < size; k++ {
			commitOff, err := c.commitsByRepo.GroupElement(int64(blockOffset), k)
			if err != nil {
				return err
			}
			commitLazy.retarget(fileCommits, int64(commitOff))

			authorVal, err := commitLazy.Get(commitFieldAuthorID)
			if err != nil {
				return err
			}
			committerVal, err := commitLazy.Get(commitFieldCommitterID)
			if err != nil {
				return err
			}

			_, isFriend := binarySearchInt32(friends, authorVal.Int32)
			commitLazy.Set(commitFieldAuthorIsFriend, Value{Bool: isFriend})
			_, isFriend = binarySearchInt32(friends, committerVal.Int32)
			commitLazy.Set(commitFieldCommitterIsFriend, Value{Bool: isFriend})
			if err := commitLazy.Flush(); err != nil {
				return err
			}

			if !hasBot {
				if kind, ok, err := c.lookupUserKind(userLazy, authorVal.Int32); err == nil && ok && kind == KindBot {
					hasBot = true
				} else if err != nil {
					return err
				}
				if !hasBot {
					if kind, ok, err := c.lookupUserKind(userLazy, committerVal.Int32); err == nil && ok && kind == KindBot {
						hasBot = true
					} else if err != nil {
						return err
					}
				}
			}
		}
		if hasBot {
			c.manifest.ReposWithBots++
		}

		collabOff, err := c.collaborators.Exact(repoKey)
		if err != nil {
			return err
		}
		if collabOff >= 0 {
			collabBlock, err := c.collaborators.ValueAt(collabOff)
			if err != nil {
				return err
			}
			collabSize, err := c.collaborators.GroupSize(int64(collabBlock))
			if err != nil {
				return err
			}
			totalCollaborators += int64(collabSize)
		}
		reposSeen++
	}

	if reposSeen > 0 {
		c.manifest.MeanCollaborators = float64(totalCollaborators) / float64(reposSeen)
	}
	totalUsers := c.manifest.HumanCount + c.manifest.OrganisationCount + c.manifest.BotCount
	if totalUsers > 0 {
		c.manifest.MeanCommitsPerUser = float64(c.manifest.CommitCount) / float64(totalUsers)
	}
	return nil
}

func (c *Catalog) lookupUserKind(lazy *Lazy, id int32) (AccountKind, bool, error) {
	off, found, err := c.lookupUserOffset(id)
	if err != nil || !found {
		return 0, false, err
	}
	lazy.retarget(fileUsers, off)
	v, err := lazy.Get(acctFieldKind)
	if err != nil {
		return 0, false, err
	}
	return AccountKind(v.Int32), true, nil
}

// lookupUserOffset resolves a user id to its record offset, consulting
// the bloom filter first to skip the binary search on a definite miss.
func (c *Catalog) lookupUserOffset(id int32) (int64, bool, error) {
	if !c.userBloom.MaybeContains(id) {
		return 0, false, nil
	}
	i, err := c.usersByID.Exact(uint64(id))
	if err != nil || i < 0 {
		return 0, false, err
	}
	off, err := c.usersByID.ValueAt(i)
	return int64(off), err == nil, err
}

func (c *Catalog) lookupRepoOffset(id int32) (int64, bool, error) {
	if !c.repoBloom.MaybeContains(id) {
		return 0, false, nil
	}
	i, err := c.reposByID.Exact(uint64(id))
	if err != nil || i < 0 {
		return 0, false, err
	}
	off, err := c.reposByID.ValueAt(i)
	return int64(off), err == nil, err
}

func (c *Catalog) persistManifest() error {
	data, err := json.Marshal(c.manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, manifestFileName), compressBlock(data), 0o644)
}

// Load reopens a previously built catalog under dir, validating it
// against the CSV inputs under inputDir. Returns ErrCatalogIncomplete if
// any of the 14 artefacts is missing, or ErrCatalogStale if the inputs'
// fingerprint no longer matches the persisted one.
func Load(dir, inputDir string, cfg Config) (*Catalog, error) {
	cfg = cfg.withDefaults()

	for _, p := range artefactPaths(dir) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCatalogIncomplete, p)
		}
	}

	lockF, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	lock := &fileLock{}
	lock.setFile(lockF)
	if err := lock.Lock(LockShared); err != nil {
		lockF.Close()
		return nil, err
	}

	cat, err := load(dir, inputDir, cfg, lock, lockF)
	if err != nil {
		lock.Unlock()
		lockF.Close()
		return nil, err
	}
	return cat, nil
}

func load(dir, inputDir string, cfg Config, lock *fileLock, lockF *os.File) (*Catalog, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, err
	}
	data, err := decompressBlock(raw)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	fp, err := computeFingerprint([]string{
		filepath.Join(inputDir, accountsCSVName),
		filepath.Join(inputDir, reposCSVName),
		filepath.Join(inputDir, commitsCSVName),
	}, cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	if fp != m.Fingerprint {
		return nil, ErrCatalogStale
	}

	cache, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}

	usersFile, err := os.OpenFile(filepath.Join(dir, usersFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	reposFile, err := os.OpenFile(filepath.Join(dir, reposFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	commitsFile, err := os.OpenFile(filepath.Join(dir, commitsFileName), os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	cache.Register(fileUsers, usersFile)
	cache.Register(fileRepos, reposFile)
	cache.Register(fileCommits, commitsFile)

	usersByID, err := OpenIndex(cache, fileUsersByID, filepath.Join(dir, usersByIDFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	usersByID.WithValueFile(fileUsers)

	reposByID, err := OpenIndex(cache, fileReposByID, filepath.Join(dir, reposByIDFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	reposByID.WithValueFile(fileRepos)

	reposByLastCommit, err := OpenIndex(cache, fileReposByLastCommit, filepath.Join(dir, reposByLastCommitFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	reposByLastCommit.WithValueFile(fileRepos)

	reposByLanguage, err := OpenGroupedIndex(cache, fileReposByLanguage, filepath.Join(dir, reposByLanguageFileName),
		fileReposByLanguageValues, filepath.Join(dir, reposByLanguageValuesFileName), CompareString, cfg)
	if err != nil {
		return nil, err
	}
	reposByLanguage.WithKeySource(fileRepos).WithValueFile(fileRepos)

	commitsByRepo, err := OpenGroupedIndex(cache, fileCommitsByRepo, filepath.Join(dir, commitsByRepoFileName),
		fileCommitsByRepoValues, filepath.Join(dir, commitsByRepoValuesFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	commitsByRepo.WithValueFile(fileCommits)

	commitsByDate, err := OpenIndex(cache, fileCommitsByDate, filepath.Join(dir, commitsByDateFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}
	commitsByDate.WithValueFile(fileCommits)

	collaborators, err := OpenGroupedIndex(cache, fileCollaborators, filepath.Join(dir, collaboratorsFileName),
		fileCollaboratorsValues, filepath.Join(dir, collaboratorsValuesFileName), CompareDirect, cfg)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		dir: dir, cfg: cfg,
		cache: cache, lock: lock, lockF: lockF,
		usersFile: usersFile, reposFile: reposFile, commitsFile: commitsFile,
		usersByID: usersByID, reposByID: reposByID,
		reposByLastCommit: reposByLastCommit, reposByLanguage: reposByLanguage,
		commitsByRepo: commitsByRepo, commitsByDate: commitsByDate,
		collaborators: collaborators,
		userBloom:     newIDBloom(), repoBloom: newIDBloom(),
		manifest: m,
	}
	if err := populateBloom(usersByID, cat.userBloom); err != nil {
		return nil, err
	}
	if err := populateBloom(reposByID, cat.repoBloom); err != nil {
		return nil, err
	}
	return cat, nil
}

// Close flushes and closes the Cache first, so its flush-backs still reach
// live handles, then releases every file the Catalog owns (spec.md §5).
func (c *Catalog) Close() error {
	err := c.cache.Close()
	for _, ix := range []*Indexer{
		c.usersByID, c.reposByID, c.reposByLastCommit, c.reposByLanguage,
		c.commitsByRepo, c.commitsByDate, c.collaborators,
	} {
		ix.Close()
	}
	c.usersFile.Close()
	c.reposFile.Close()
	c.commitsFile.Close()
	c.lock.Unlock()
	c.lockF.Close()
	return err
}
