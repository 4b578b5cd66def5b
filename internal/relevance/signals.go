package relevance

import (
	"strconv"
	"strings"

	"github.com/askmesh/askmesh/internal/schema"
)

var (
	dateWords = map[string]struct{}{
		"date": {}, "année": {}, "an": {}, "mois": {}, "jour": {}, "semaine": {},
		"trimestre": {}, "semestre": {}, "y": {}, "year": {}, "month": {}, "day": {},
	}
	numberWords = map[string]struct{}{
		"combien": {}, "total": {}, "somme": {}, "moyenne": {}, "count": {}, "avg": {},
		"sum": {}, "min": {}, "max": {}, "écart": {}, "répartition": {}, "top": {},
		"%": {}, "percent": {}, "pourcentage": {}, "nb": {},
	}
	textWords = map[string]struct{}{
		"nom": {}, "name": {}, "titre": {}, "code": {}, "libellé": {},
		"description": {}, "contient": {}, "like": {}, "ilike": {},
	}
)

// columnSignals is what column scoring needs from a question, computed once
// per request.
type columnSignals struct {
	kinds   map[schema.Kind]struct{}
	hasYear bool
	tokens  []string
}

func newColumnSignals(question string) columnSignals {
	q := strings.ToLower(question)
	signals := columnSignals{
		kinds:   map[schema.Kind]struct{}{},
		hasYear: len(Years(question)) > 0,
	}

	hints := map[string]struct{}{}
	for _, hint := range hintPattern.FindAllString(q, -1) {
		hints[hint] = struct{}{}
	}
	if intersects(hints, dateWords) || signals.hasYear {
		signals.kinds[schema.KindDate] = struct{}{}
	}
	if intersects(hints, numberWords) {
		signals.kinds[schema.KindNumber] = struct{}{}
	}
	if intersects(hints, textWords) {
		signals.kinds[schema.KindText] = struct{}{}
	}

	seen := map[string]struct{}{}
	for _, token := range tokenPattern.FindAllString(q, -1) {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		signals.tokens = append(signals.tokens, token)
	}
	return signals
}

func (s columnSignals) score(column schema.Column) int {
	score := 0
	if len(s.kinds) > 0 {
		if _, ok := s.kinds[column.Kind]; ok {
			score += 3
		}
	}
	if s.hasYear {
		if column.Kind == schema.KindDate {
			score += 3
		} else {
			score--
		}
	}

	name := strings.ToLower(column.Name)
	if s.anyTokenIn(name) {
		score += 2
	}
	if column.Description != "" && s.anyTokenIn(strings.ToLower(column.Description)) {
		score++
	}

	switch {
	case column.Name == "ID" || strings.HasSuffix(column.Name, "_ID"):
		score += 4
	case column.Name == "NAME" || column.Name == "CODE":
		score += 3
	case column.Name == "START_DATE" || column.Name == "END_DATE":
		score += 3
	}
	return score
}

func (s columnSignals) anyTokenIn(text string) bool {
	for _, token := range s.tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// ExpectedKinds reports the column kinds a question hints at.
func ExpectedKinds(question string) []schema.Kind {
	signals := newColumnSignals(question)
	var out []schema.Kind
	for _, kind := range []schema.Kind{schema.KindDate, schema.KindNumber, schema.KindText} {
		if _, ok := signals.kinds[kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

// Years lists the distinct years 2000..2099 cited in a question, in order of
// appearance.
func Years(question string) []int {
	var years []int
	seen := map[int]struct{}{}
	for _, match := range yearPattern.FindAllString(question, -1) {
		year, err := strconv.Atoi(match)
		if err != nil || year < 2000 || year > 2099 {
			continue
		}
		if _, ok := seen[year]; ok {
			continue
		}
		seen[year] = struct{}{}
		years = append(years, year)
	}
	return years
}

func intersects(a, b map[string]struct{}) bool {
	for key := range a {
		if _, ok := b[key]; ok {
			return true
		}
	}
	return false
}
