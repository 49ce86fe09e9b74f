package categories

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

const (
	maxSuggestions = 3
	// keywordSaturation is the number of keyword hits that maps to full confidence.
	keywordSaturation = 3
)

const suggestSystemPrompt = `You classify service requests for a local services marketplace.
Answer only with JSON of the form {"suggestions":[{"slug":"<slug>","confidence":<0..1>}]}.
Use only slugs from the provided list. Return at most 3 suggestions, best first.`

func (s *service) Suggest(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	text := strings.TrimSpace(req.Title + " " + req.Description)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title or description is required")
	}

	catalog, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	if len(catalog) == 0 {
		return []Suggestion{}, nil
	}

	if s.generator != nil {
		suggestions, err := s.suggestWithAI(ctx, req, catalog)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "categories.suggest.ai_fallback")
		} else if len(suggestions) > 0 {
			return suggestions, nil
		}
	}
	return suggestByKeywords(text, catalog), nil
}

func (s *service) suggestWithAI(ctx context.Context, req SuggestRequest, catalog []models.Category) ([]Suggestion, error) {
	raw, err := s.generator.GenerateJSON(ctx, suggestSystemPrompt, buildSuggestPrompt(req, catalog))
	if err != nil {
		return nil, err
	}
	return parseAISuggestions(raw, catalog)
}

func buildSuggestPrompt(req SuggestRequest, catalog []models.Category) string {
	var b strings.Builder
	b.WriteString("Categories (slug: name):\n")
	for _, c := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", c.Slug, c.Name)
	}
	fmt.Fprintf(&b, "\nTitle: %s\nDescription: %s\n", strings.TrimSpace(req.Title), strings.TrimSpace(req.Description))
	return b.String()
}

// parseAISuggestions keeps known slugs only, deduplicated and ranked by confidence.
func parseAISuggestions(raw string, catalog []models.Category) ([]Suggestion, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("model returned invalid json")
	}
	list := gjson.Get(raw, "suggestions")
	if !list.IsArray() {
		return nil, fmt.Errorf("model response missing suggestions")
	}

	bySlug := make(map[string]models.Category, len(catalog))
	for _, c := range catalog {
		bySlug[c.Slug] = c
	}

	seen := map[string]struct{}{}
	out := []Suggestion{}
	for _, item := range list.Array() {
		slug := strings.ToLower(strings.TrimSpace(item.Get("slug").String()))
		category, ok := bySlug[slug]
		if !ok {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, Suggestion{
			Category:   FromModel(category),
			Confidence: clampConfidence(item.Get("confidence").Float()),
			Source:     SourceAI,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out, nil
}

type keywordScore struct {
	category models.Category
	hits     int
}

// suggestByKeywords scores each category by how many of its keywords, its slug
// words or its name words occur in the normalized text.
func suggestByKeywords(text string, catalog []models.Category) []Suggestion {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return []Suggestion{}
	}
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = struct{}{}
	}
	padded := " " + strings.Join(tokens, " ") + " "

	scores := []keywordScore{}
	for _, c := range catalog {
		hits := 0
		for _, term := range categoryTerms(c) {
			if strings.Contains(term, " ") {
				if strings.Contains(padded, " "+term+" ") {
					hits++
				}
				continue
			}
			if _, ok := tokenSet[term]; ok {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, keywordScore{category: c, hits: hits})
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].hits != scores[j].hits {
			return scores[i].hits > scores[j].hits
		}
		return scores[i].category.SortOrder < scores[j].category.SortOrder
	})
	if len(scores) > maxSuggestions {
		scores = scores[:maxSuggestions]
	}

	out := make([]Suggestion, 0, len(scores))
	for _, sc := range scores {
		out = append(out, Suggestion{
			Category:   FromModel(sc.category),
			Confidence: clampConfidence(float64(sc.hits) / keywordSaturation),
			Source:     SourceKeyword,
		})
	}
	return out
}

func categoryTerms(c models.Category) []string {
	seen := map[string]struct{}{}
	terms := []string{}
	add := func(term string) {
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	for _, kw := range c.Keywords {
		add(strings.Join(tokenize(kw), " "))
	}
	for _, word := range tokenize(strings.ReplaceAll(c.Slug, "-", " ")) {
		if len(word) > 2 {
			add(word)
		}
	}
	for _, word := range tokenize(c.Name) {
		if len(word) > 2 {
			add(word)
		}
	}
	return terms
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*100) / 100
}
