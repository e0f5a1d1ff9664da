// Query Engine: the ten fixed analytic queries answered over a built
// Catalog (spec.md §4.6). Each query reads its arguments from a plain
// space-separated line (spec.md §6) and writes its result rows to a
// dedicated output file — no bespoke formatting package, just the same
// `;`-joined row shape the rest of the catalog already uses.
package ghcatalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Query is one parsed line of a queries file: an id in 0..10 (0 is the
// no-op line, -1 is an invalid line) plus its raw argument tokens.
type Query struct {
	ID   int
	Args []string
}

// ParseQuery parses one queries-file line. An empty line is the no-op
// query 0; a line whose first token is not an integer in [0,10] parses
// as id -1, per spec.md §7's "invalid query id/arguments" policy.
func ParseQuery(line string) Query {
	line = strings.TrimSpace(line)
	if line == "" {
		return Query{ID: 0}
	}
	fields := strings.Fields(line)
	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 || id > 10 {
		return Query{ID: -1}
	}
	return Query{ID: id, Args: fields[1:]}
}

// ParseQueries reads one Query per line from path.
func ParseQueries(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []Query
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		queries = append(queries, ParseQuery(scanner.Text()))
	}
	return queries, scanner.Err()
}

// Run executes every query in queries against c, writing each executed
// query's output to outDir/command<n>_output.txt where n is the query's
// 1-based position in queries. Query 0 (no-op) and -1 (invalid) produce
// no file, per spec.md §7.
func (c *Catalog) Run(queries []Query, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for i, q := range queries {
		if q.ID <= 0 {
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("command%d_output.txt", i+1))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		err = c.runQuery(q, w)
		if err == nil {
			err = w.Flush()
		}
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) runQuery(q Query, w *bufio.Writer) error {
	switch q.ID {
	case 1:
		return c.queryCountByKind(w)
	case 2:
		fmt.Fprintf(w, "%.2f\n", c.manifest.MeanCollaborators)
		return nil
	case 3:
		fmt.Fprintf(w, "%d\n", c.manifest.ReposWithBots)
		return nil
	case 4:
		fmt.Fprintf(w, "%.2f\n", c.manifest.MeanCommitsPerUser)
		return nil
	case 5:
		return c.queryActiveUsersInRange(q.Args, w)
	case 6:
		return c.queryTopUsersByLanguage(q.Args, w)
	case 7:
		return c.queryReposInactiveSince(q.Args, w)
	case 8:
		return c.queryTopLanguagesSince(q.Args, w)
	case 9:
		return c.queryTopUsersInFriendsRepos(q.Args, w)
	case 10:
		return c.queryTopUsersByMessageLength(q.Args, w)
	default:
		return nil
	}
}

func (c *Catalog) queryCountByKind(w *bufio.Writer) error {
	fmt.Fprintf(w, "%s;%d\n", accountKindLabels[KindHuman], c.manifest.HumanCount)
	fmt.Fprintf(w, "%s;%d\n", accountKindLabels[KindOrganisation], c.manifest.OrganisationCount)
	fmt.Fprintf(w, "%s;%d\n", accountKindLabels[KindBot], c.manifest.BotCount)
	return nil
}

// userCount pairs a user id with an accumulated count, sorted descending
// by count and then ascending by id (spec.md §4.6's tie-break rule).
type userCount struct {
	id    int32
	count int64
}

func sortUserCounts(counts []userCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].id < counts[j].id
	})
}

func parseTopN(args []string) (int, []string, bool) {
	if len(args) == 0 {
		return 0, nil, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, nil, false
	}
	return n, args[1:], true
}

func (c *Catalog) queryActiveUsersInRange(args []string, w *bufio.Writer) error {
	n, rest, ok := parseTopN(args)
	if !ok || len(rest) != 2 {
		return nil
	}
	start, ok := ParseDate(rest[0])
	if !ok {
		return nil
	}
	end, ok := ParseDate(rest[1])
	if !ok {
		return nil
	}
	end.Hour, end.Minute, end.Second = 23, 59, 59
	startKey := uint64(start.Pack())
	endKey := uint64(end.Pack())

	lo, err := c.commitsByDate.LowerBound(startKey)
	if err != nil {
		return err
	}

	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}

	counts := make(map[int32]int64)
	n64 := c.commitsByDate.ElemNo()
	for i := lo; i < n64; i++ {
		key, err := c.commitsByDate.KeyAt(i)
		if err != nil {
			return err
		}
		if key > endKey {
			break
		}
		if err := c.commitsByDate.ValueAsLazy(i, commitLazy); err != nil {
			return err
		}
		author, err := commitLazy.Get(commitFieldAuthorID)
		if err != nil {
			return err
		}
		counts[author.Int32]++
	}

	return writeTopUserCounts(w, counts, n)
}

func writeTopUserCounts(w *bufio.Writer, counts map[int32]int64, n int) error {
	list := make([]userCount, 0, len(counts))
	for id, count := range counts {
		list = append(list, userCount{id, count})
	}
	sortUserCounts(list)
	if n < len(list) {
		list = list[:n]
	}
	for _, uc := range list {
		fmt.Fprintf(w, "%d;%d\n", uc.id, uc.count)
	}
	return nil
}

func (c *Catalog) queryTopUsersByLanguage(args []string, w *bufio.Writer) error {
	n, rest, ok := parseTopN(args)
	if !ok || len(rest) != 1 {
		return nil
	}
	lang := strings.ToLower(rest[0])

	slot, err := c.reposByLanguage.ExactString(lang)
	if err != nil {
		return err
	}
	counts := make(map[int32]int64)
	if slot < 0 {
		return writeTopUserCounts(w, counts, n)
	}
	blockOffset, err := c.reposByLanguage.ValueAt(slot)
	if err != nil {
		return err
	}
	size, err := c.reposByLanguage.GroupSize(int64(blockOffset))
	if err != nil {
		return err
	}

	repoLazy, err := NewLazy(c.cache, fileRepos, 0, repoFormat)
	if err != nil {
		return err
	}
	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}

	for k := int32(0); k < size; k++ {
		repoOff, err := c.reposByLanguage.GroupElement(int64(blockOffset), k)
		if err != nil {
			return err
		}
		repoLazy.retarget(fileRepos, int64(repoOff))
		repoIDVal, err := repoLazy.Get(repoFieldID)
		if err != nil {
			return err
		}

		slot, err := c.commitsByRepo.Exact(uint64(repoIDVal.Int32))
		if err != nil {
			return err
		}
		if slot < 0 {
			continue
		}
		commitBlock, err := c.commitsByRepo.ValueAt(slot)
		if err != nil {
			return err
		}
		commitCount, err := c.commitsByRepo.GroupSize(int64(commitBlock))
		if err != nil {
			return err
		}
		for j := int32(0); j < commitCount; j++ {
			commitOff, err := c.commitsByRepo.GroupElement(int64(commitBlock), j)
			if err != nil {
				return err
			}
			commitLazy.retarget(fileCommits, int64(commitOff))
			author, err := commitLazy.Get(commitFieldAuthorID)
			if err != nil {
				return err
			}
			counts[author.Int32]++
		}
	}
	return writeTopUserCounts(w, counts, n)
}

func (c *Catalog) queryReposInactiveSince(args []string, w *bufio.Writer) error {
	if len(args) != 1 {
		return nil
	}
	cutoff, ok := ParseDate(args[0])
	if !ok {
		return nil
	}
	hi, err := c.reposByLastCommit.LowerBound(uint64(cutoff.Pack()))
	if err != nil {
		return err
	}

	repoLazy, err := NewLazy(c.cache, fileRepos, 0, repoFormat)
	if err != nil {
		return err
	}
	for i := int64(0); i < hi; i++ {
		if err := c.reposByLastCommit.ValueAsLazy(i, repoLazy); err != nil {
			return err
		}
		idVal, err := repoLazy.Get(repoFieldID)
		if err != nil {
			return err
		}
		descVal, err := repoLazy.Get(repoFieldDesc)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d;%s\n", idVal.Int32, descVal.Str)
	}
	return nil
}

func (c *Catalog) queryTopLanguagesSince(args []string, w *bufio.Writer) error {
	n, rest, ok := parseTopN(args)
	if !ok || len(rest) != 1 {
		return nil
	}
	cutoff, ok := ParseDate(rest[0])
	if !ok {
		return nil
	}
	lo, err := c.commitsByDate.LowerBound(uint64(cutoff.Pack()))
	if err != nil {
		return err
	}

	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}
	repoLazy, err := NewLazy(c.cache, fileRepos, 0, repoFormat)
	if err != nil {
		return err
	}

	counts := make(map[string]int64)
	n64 := c.commitsByDate.ElemNo()
	for i := lo; i < n64; i++ {
		if err := c.commitsByDate.ValueAsLazy(i, commitLazy); err != nil {
			return err
		}
		repoIDVal, err := commitLazy.Get(commitFieldRepoID)
		if err != nil {
			return err
		}
		repoOff, found, err := c.lookupRepoOffset(repoIDVal.Int32)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		repoLazy.retarget(fileRepos, repoOff)
		langVal, err := repoLazy.Get(repoFieldLang)
		if err != nil {
			return err
		}
		if langVal.Str == "none" {
			continue
		}
		counts[langVal.Str]++
	}

	type langCount struct {
		lang  string
		count int64
	}
	list := make([]langCount, 0, len(counts))
	for lang, count := range counts {
		list = append(list, langCount{lang, count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].lang < list[j].lang
	})
	if n < len(list) {
		list = list[:n]
	}
	for _, lc := range list {
		fmt.Fprintf(w, "%s;%d\n", lc.lang, lc.count)
	}
	return nil
}

func (c *Catalog) queryTopUsersInFriendsRepos(args []string, w *bufio.Writer) error {
	n, _, ok := parseTopN(args)
	if !ok {
		return nil
	}

	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}

	counts := make(map[int32]int64)
	n64 := c.commitsByRepo.ElemNo()
	for i := int64(0); i < n64; i++ {
		blockOffset, err := c.commitsByRepo.ValueAt(i)
		if err != nil {
			return err
		}
		size, err := c.commitsByRepo.GroupSize(int64(blockOffset))
		if err != nil {
			return err
		}
		for k := int32(0); k < size; k++ {
			commitOff, err := c.commitsByRepo.GroupElement(int64(blockOffset), k)
			if err != nil {
				return err
			}
			commitLazy.retarget(fileCommits, int64(commitOff))
			authorIsFriend, err := commitLazy.Get(commitFieldAuthorIsFriend)
			if err != nil {
				return err
			}
			if authorIsFriend.Bool {
				author, err := commitLazy.Get(commitFieldAuthorID)
				if err != nil {
					return err
				}
				counts[author.Int32]++
			}
			committerIsFriend, err := commitLazy.Get(commitFieldCommitterIsFriend)
			if err != nil {
				return err
			}
			if committerIsFriend.Bool {
				committer, err := commitLazy.Get(commitFieldCommitterID)
				if err != nil {
					return err
				}
				counts[committer.Int32]++
			}
		}
	}
	return writeTopUserCounts(w, counts, n)
}

func (c *Catalog) queryTopUsersByMessageLength(args []string, w *bufio.Writer) error {
	n, _, ok := parseTopN(args)
	if !ok {
		return nil
	}

	commitLazy, err := NewLazy(c.cache, fileCommits, 0, commitFormat)
	if err != nil {
		return err
	}
	userLazy, err := NewLazy(c.cache, fileUsers, 0, accountFormat)
	if err != nil {
		return err
	}

	n64 := c.commitsByRepo.ElemNo()
	for i := int64(0); i < n64; i++ {
		repoKey, err := c.commitsByRepo.KeyAt(i)
		if err != nil {
			return err
		}
		blockOffset, err := c.commitsByRepo.ValueAt(i)
		if err != nil {
			return err
		}
		size, err := c.commitsByRepo.GroupSize(int64(blockOffset))
		if err != nil {
			return err
		}

		maxLen := make(map[int32]int)
		for k := int32(0); k < size; k++ {
			commitOff, err := c.commitsByRepo.GroupElement(int64(blockOffset), k)
			if err != nil {
				return err
			}
			commitLazy.retarget(fileCommits, int64(commitOff))
			author, err := commitLazy.Get(commitFieldAuthorID)
			if err != nil {
				return err
			}
			msg, err := commitLazy.Get(commitFieldMessage)
			if err != nil {
				return err
			}
			length := 0
			if msg.Valid {
				length = len(msg.Str)
			}
			if length > maxLen[author.Int32] {
				maxLen[author.Int32] = length
			}
		}

		type userLen struct {
			id  int32
			len int
		}
		list := make([]userLen, 0, len(maxLen))
		for id, l := range maxLen {
			list = append(list, userLen{id, l})
		}
		sort.Slice(list, func(a, b int) bool {
			if list[a].len != list[b].len {
				return list[a].len > list[b].len
			}
			return list[a].id < list[b].id
		})
		if n < len(list) {
			list = list[:n]
		}
		for _, ul := range list {
			off, found, err := c.lookupUserOffset(ul.id)
			if err != nil {
				return err
			}
			login := ""
			if found {
				userLazy.retarget(fileUsers, off)
				loginVal, err := userLazy.Get(acctFieldLogin)
				if err != nil {
					return err
				}
				login = loginVal.Str
			}
			fmt.Fprintf(w, "%d;%s;%d;%d\n", ul.id, login, ul.len, int32(repoKey))
		}
	}
	return nil
}
