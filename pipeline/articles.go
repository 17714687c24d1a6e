package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/youssefsiam38/legalpg/storage"
)

// ErrArticleNotFound is returned when an article heading listed in the table
// of contents does not occur in the text.
var ErrArticleNotFound = errors.New("article heading not found")

// ErrInvalidTableOfContents is returned for a table of contents CSV that is
// missing a required column or lists an article twice.
var ErrInvalidTableOfContents = errors.New("invalid table of contents")

// TOCEntry is one row of a table of contents
type TOCEntry struct {
	Chapter     string
	ChapterName string
	Section     *string
	SectionName *string
	Article     string
	ArticleName string
	URL         string
}

var tocColumns = []string{"chapter", "chapter_name", "section", "section_name", "article", "article_name", "url"}

// LoadPages reads text extracted from a PDF, one page per form feed, drops
// the first startPage pages and joins the rest with "\n ".
func LoadPages(path string, startPage int) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	pages := strings.Split(string(raw), "\f")
	if startPage >= len(pages) {
		return "", nil
	}
	return strings.Join(pages[max(startPage, 0):], "\n "), nil
}

// ReadTableOfContentsFile opens path and reads it with ReadTableOfContents.
func ReadTableOfContentsFile(path string) ([]TOCEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadTableOfContents(f)
}

// ReadTableOfContents parses a CSV table of contents with the header
// chapter, chapter_name, section, section_name, article, article_name, url
// (in any order). Empty section fields become nil.
func ReadTableOfContents(r io.Reader) ([]TOCEntry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrInvalidTableOfContents, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range tocColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidTableOfContents, c)
		}
	}

	var entries []TOCEntry
	seen := make(map[string]bool)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTableOfContents, err)
		}
		field := func(name string) string {
			return strings.TrimSpace(rec[index[name]])
		}
		optional := func(name string) *string {
			if v := field(name); v != "" {
				return &v
			}
			return nil
		}

		e := TOCEntry{
			Chapter:     field("chapter"),
			ChapterName: field("chapter_name"),
			Section:     optional("section"),
			SectionName: optional("section_name"),
			Article:     field("article"),
			ArticleName: field("article_name"),
			URL:         field("url"),
		}
		if e.Article == "" {
			return nil, fmt.Errorf("%w: empty article on line %d", ErrInvalidTableOfContents, len(entries)+2)
		}
		if seen[e.Article] {
			return nil, fmt.Errorf("%w: duplicate article %q", ErrInvalidTableOfContents, e.Article)
		}
		seen[e.Article] = true
		entries = append(entries, e)
	}
	return entries, nil
}

// SortArticles orders entries by article number, comparing numeric prefixes
// numerically so that "2" sorts before "10".
func SortArticles(entries []TOCEntry) {
	slices.SortStableFunc(entries, func(a, b TOCEntry) int {
		return compareArticles(a.Article, b.Article)
	})
}

func compareArticles(a, b string) int {
	na, ra := splitNumber(a)
	nb, rb := splitNumber(b)
	switch {
	case na >= 0 && nb >= 0 && na != nb:
		return na - nb
	case na >= 0 && nb < 0:
		return -1
	case na < 0 && nb >= 0:
		return 1
	}
	return strings.Compare(ra, rb)
}

// splitNumber splits "12a" into 12 and "a". The number is -1 when s does not
// start with a digit.
func splitNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, s
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return -1, s
	}
	return n, s[i:]
}

// ExtractArticles splits text into the articles listed in toc. Articles are
// taken in article-number order; each body runs from the end of its heading
// ("<keyword> <article>", e.g. "Article 5" or "Art. 5") to the start of the
// next article's heading, searched for in the text that remains. The last
// article takes the remainder.
func ExtractArticles(text, keyword string, toc []TOCEntry) ([]*storage.Document, error) {
	entries := slices.Clone(toc)
	SortArticles(entries)

	docs := make([]*storage.Document, 0, len(entries))
	residual := text
	for i, e := range entries {
		_, end, ok := findHeading(residual, keyword, e.Article)
		if !ok {
			return nil, fmt.Errorf("%w: %s %s", ErrArticleNotFound, keyword, e.Article)
		}

		rest := residual[end:]
		body := rest
		if i+1 < len(entries) {
			next, _, ok := findHeading(rest, keyword, entries[i+1].Article)
			if !ok {
				return nil, fmt.Errorf("%w: %s %s", ErrArticleNotFound, keyword, entries[i+1].Article)
			}
			body = rest[:next]
			rest = rest[next:]
		}
		residual = rest

		docs = append(docs, &storage.Document{
			Chapter:     e.Chapter,
			ChapterName: e.ChapterName,
			Section:     e.Section,
			SectionName: e.SectionName,
			Article:     e.Article,
			ArticleName: e.ArticleName,
			URL:         e.URL,
			Contents:    strings.TrimSpace(body),
		})
	}
	return docs, nil
}

// findHeading locates "<keyword> <article>" in s, not followed by another
// digit so that "Article 1" does not match "Article 12". Headings at the
// start of a line win over inline cross-references.
func findHeading(s, keyword, article string) (start, end int, ok bool) {
	pattern := regexp.QuoteMeta(keyword) + `\s*` + regexp.QuoteMeta(article)
	for _, re := range []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[ \t]*` + pattern),
		regexp.MustCompile(pattern),
	} {
		for _, loc := range re.FindAllStringIndex(s, -1) {
			if loc[1] < len(s) && s[loc[1]] >= '0' && s[loc[1]] <= '9' {
				continue
			}
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}
