package relevance

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/askmesh/askmesh/internal/schema"
)

const (
	DefaultTopTables  = 5
	DefaultMaxColumns = 20

	// fallbackTables is how many catalog tables are used when no table scores.
	fallbackTables = 3
	// scannedColumns bounds the column-name signal of table scoring.
	scannedColumns = 30
)

// Ranker compresses a catalog into the tables and columns most likely to
// answer a question. The zero value uses the defaults.
type Ranker struct {
	TopTables  int
	MaxColumns int
}

func New(topTables, maxColumns int) Ranker {
	return Ranker{TopTables: topTables, MaxColumns: maxColumns}
}

// Selection is the ranked outcome for one question. Tables is the frozen
// candidate order; Columns holds the picked columns per table.
type Selection struct {
	Tables  []string
	Columns map[string][]string
}

func (r Ranker) Select(catalog *schema.Catalog, question string) Selection {
	tables := r.PickTables(catalog, question)
	selection := Selection{
		Tables:  tables,
		Columns: make(map[string][]string, len(tables)),
	}
	signals := newColumnSignals(question)
	for _, name := range tables {
		table, ok := catalog.Table(name)
		if !ok {
			continue
		}
		selection.Columns[name] = r.pickColumns(table, signals)
	}
	return selection
}

type tableScore struct {
	name  string
	score int
}

// PickTables scores every table against the question and keeps the best
// TopTables. Equal scores are ordered by table name descending.
func (r Ranker) PickTables(catalog *schema.Catalog, question string) []string {
	if catalog == nil || catalog.Len() == 0 {
		return nil
	}
	q := strings.ToLower(question)
	words := wordsOf(q)

	var scored []tableScore
	for _, table := range catalog.Tables() {
		score := scoreTable(table, q, words)
		if score > 0 {
			scored = append(scored, tableScore{name: table.Name, score: score})
		}
	}
	if len(scored) == 0 {
		names := catalog.TableNames()
		if len(names) > fallbackTables {
			names = names[:fallbackTables]
		}
		return names
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name > scored[j].name
	})

	limit := r.topTables()
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]string, 0, len(scored))
	for _, entry := range scored {
		out = append(out, entry.name)
	}
	return out
}

func scoreTable(table *schema.Table, q string, words []string) int {
	score := 0
	if table.Description != "" {
		described := wordSet(strings.ToLower(table.Description))
		for _, word := range words {
			if _, ok := described[word]; ok {
				score += 3
			}
		}
	}
	if strings.Contains(q, strings.ToLower(table.Name)) {
		score += 2
	}
	for _, alias := range table.Aliases {
		if alias != "" && strings.Contains(q, strings.ToLower(alias)) {
			score += 2
		}
	}
	for i, column := range table.Columns {
		if i == scannedColumns {
			break
		}
		if strings.Contains(q, strings.ToLower(column.Name)) {
			score++
		}
	}
	return score
}

// PickColumns picks at most MaxColumns columns of table for the question.
func (r Ranker) PickColumns(table *schema.Table, question string) []string {
	if table == nil {
		return nil
	}
	return r.pickColumns(table, newColumnSignals(question))
}

type columnScore struct {
	name  string
	score int
}

func (r Ranker) pickColumns(table *schema.Table, signals columnSignals) []string {
	scored := make([]columnScore, 0, len(table.Columns))
	for _, column := range table.Columns {
		scored = append(scored, columnScore{name: column.Name, score: signals.score(column)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})

	limit := r.maxColumns()
	picked := make([]string, 0, min(limit, len(scored)))
	for _, entry := range scored {
		if len(picked) == limit {
			break
		}
		picked = append(picked, entry.name)
	}
	return retainMustKeep(table, picked, limit)
}

var mustKeepColumns = []string{"ID", "PROJECT_ID", "NAME", "CODE", "START_DATE", "END_DATE"}

// retainMustKeep appends identifier columns that truncation cut while the
// output has room. Ranked columns are never displaced.
func retainMustKeep(table *schema.Table, picked []string, limit int) []string {
	for _, name := range mustKeepColumns {
		if len(picked) >= limit {
			break
		}
		if !table.HasColumn(name) || contains(picked, name) {
			continue
		}
		picked = append(picked, name)
	}
	return picked
}

func (r Ranker) topTables() int {
	if r.TopTables <= 0 {
		return DefaultTopTables
	}
	return r.TopTables
}

func (r Ranker) maxColumns() int {
	if r.MaxColumns <= 0 {
		return DefaultMaxColumns
	}
	return r.MaxColumns
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func wordsOf(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

func wordSet(text string) map[string]struct{} {
	words := wordsOf(text)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

var (
	yearPattern  = regexp.MustCompile(`\b(20[0-9]{2})\b`)
	hintPattern  = regexp.MustCompile(`[a-zà-ÿ%><=]+`)
	tokenPattern = regexp.MustCompile(`[a-z0-9_à-ÿ]+`)
)
