// Package family derives a grouping key from a product's free-text name,
// brand and category so that color variants of the same cushion can be
// linked without an explicit foreign key. The grouping is a best-effort
// heuristic: a name made only of color words degenerates to an empty base
// name and over-groups; that is a documented limitation, not an error.
package family

import (
	"sort"
	"strings"

	"almofadaria/backend/internal/domain"
)

// Generic catalog terms stripped from names before comparison.
var stopWords = []string{"capa", "almofada", "cheia", "vazia", "enchimento", "kit", "lombar"}

// Vocabulary is the catalog's known color names, sorted longest-first so
// that composite names ("Azul Marinho") are stripped as one token before
// their prefixes ("Azul") are considered.
type Vocabulary []string

func NewVocabulary(colors []domain.Color) Vocabulary {
	seen := make(map[string]struct{}, len(colors))
	vocab := make(Vocabulary, 0, len(colors))
	for _, c := range colors {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		vocab = append(vocab, name)
	}
	sort.SliceStable(vocab, func(i, j int) bool {
		if len(vocab[i]) != len(vocab[j]) {
			return len(vocab[i]) > len(vocab[j])
		}
		return strings.ToLower(vocab[i]) < strings.ToLower(vocab[j])
	})
	return vocab
}

// BaseName strips color words and stop words from a product name and
// normalizes whitespace. The result may be empty.
func BaseName(name string, vocab Vocabulary) string {
	base := name
	for _, color := range vocab {
		base = removeWord(base, "("+color+")")
		base = removeWord(base, color)
	}
	for _, word := range stopWords {
		base = removeWord(base, word)
	}
	base = strings.NewReplacer("(", " ", ")", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// KeyOf builds the family key brand|category|subCategory|base, lower-cased
// for comparison. Two products with equal keys are the same cushion in
// different colors.
func KeyOf(p domain.Product, vocab Vocabulary) string {
	parts := []string{p.Brand, p.Category, p.SubCategory, BaseName(p.Name, vocab)}
	return strings.ToLower(strings.Join(parts, "|"))
}

// removeWord deletes case-insensitive whole-word occurrences of word from
// text. Word boundaries are spaces, parentheses or the string edges, so
// "Azul Marinho" is removed as one token without leaving "Marinho" behind.
func removeWord(text string, word string) string {
	lowerText := strings.ToLower(text)
	lowerWord := strings.ToLower(word)
	if lowerWord == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		idx := strings.Index(lowerText[i:], lowerWord)
		if idx < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + idx
		end := start + len(lowerWord)
		if isBoundary(lowerText, start-1) && isBoundary(lowerText, end) {
			b.WriteString(text[i:start])
			b.WriteByte(' ')
			i = end
			continue
		}
		b.WriteString(text[i : start+1])
		i = start + 1
	}
	return b.String()
}

func isBoundary(text string, idx int) bool {
	if idx < 0 || idx >= len(text) {
		return true
	}
	switch text[idx] {
	case ' ', '\t', '(', ')':
		return true
	default:
		return false
	}
}
