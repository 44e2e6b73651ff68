package text

import (
	"regexp"
	"strings"
)

// Domain is the coarse topic label attached to every chunk.
type Domain string

const (
	DomainLeadership Domain = "leadership"
	DomainMNA        Domain = "mna"
	DomainConsulting Domain = "consulting"
	DomainStrategy   Domain = "strategy"
	DomainInvesting  Domain = "investing"
	DomainPhilosophy Domain = "personal_philosophy"
)

// MinChunkChars is the cutoff below which a chunk is too small to be useful
// for retrieval.
const MinChunkChars = 100

const charsPerToken = 4

// EstimateTokens approximates token count as length/4, rounded up. This is a
// coarse proxy, not a real tokenizer; chunk boundaries in the existing corpus
// depend on it, so it stays.
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe  = regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	amountRe = regexp.MustCompile(`\$[\d,]+(\.\d{2})?[MBK]?`)
	urlRe    = regexp.MustCompile(`https?://\S+`)

	sentenceEndRe = regexp.MustCompile(`[.!?]+\s+`)
)

// Sanitize redacts PII and confidential figures before chunking. Running it
// first guarantees a chunk boundary can never split a redactable pattern.
func Sanitize(content string) string {
	s := emailRe.ReplaceAllString(content, "[EMAIL_REDACTED]")
	s = phoneRe.ReplaceAllString(s, "[PHONE_REDACTED]")
	s = amountRe.ReplaceAllString(s, "[AMOUNT_REDACTED]")
	s = urlRe.ReplaceAllString(s, "[URL_REDACTED]")
	return s
}

// Chunk splits content into segments of at most maxTokens (by the len/4
// estimate), seeding each new segment with the tail words of the previous one
// so roughly overlapTokens of context survives the boundary. Segments shorter
// than MinChunkChars are dropped.
func Chunk(content string, maxTokens, overlapTokens int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	maxChars := maxTokens * charsPerToken
	overlapChars := overlapTokens * charsPerToken

	var units []string
	for _, u := range splitSentences(content) {
		if len(u) > maxChars {
			// A single run-on sentence larger than the budget degrades
			// to word units.
			units = append(units, strings.Fields(u)...)
			continue
		}
		units = append(units, u)
	}

	var chunks []string
	var current strings.Builder

	for _, unit := range units {
		if current.Len() > 0 && current.Len()+1+len(unit) > maxChars {
			closed := strings.TrimSpace(current.String())
			chunks = append(chunks, closed)

			current.Reset()
			// Seed the next chunk with trailing context, unless the
			// unit alone already fills the budget.
			if tail := tailWords(closed, overlapChars); tail != "" && len(tail)+1+len(unit) <= maxChars {
				current.WriteString(tail)
				current.WriteString(" ")
			}
			current.WriteString(unit)
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(unit)
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}

	filtered := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if len(c) >= MinChunkChars {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// splitSentences breaks content on sentence terminators followed by
// whitespace. Content with no sentence boundaries degrades to word units so
// oversized single-sentence blobs still chunk.
func splitSentences(content string) []string {
	locs := sentenceEndRe.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return strings.Fields(content)
	}

	var units []string
	last := 0
	for _, loc := range locs {
		// Keep the terminator, drop the trailing whitespace.
		unit := strings.TrimSpace(content[last:loc[1]])
		if unit != "" {
			units = append(units, unit)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(content[last:]); rest != "" {
		units = append(units, rest)
	}
	return units
}

// tailWords returns the last words of s amounting to roughly overlapChars of
// text, using the ~5 chars/word heuristic the corpus was built with.
func tailWords(s string, overlapChars int) string {
	if overlapChars <= 0 {
		return ""
	}
	words := strings.Fields(s)
	n := overlapChars / 5
	if n <= 0 {
		return ""
	}
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}

// domainKeywords is checked in priority order; the first set with a hit wins.
var domainKeywords = []struct {
	domain   Domain
	keywords []string
}{
	{DomainLeadership, []string{"leadership", "management", "team", "culture", "vision"}},
	{DomainMNA, []string{"merger", "acquisition", "due diligence", "valuation", "deal"}},
	{DomainConsulting, []string{"consulting", "advisory", "implementation"}},
	{DomainStrategy, []string{"strategy", "strategic", "planning", "roadmap", "competitive", "market"}},
	{DomainInvesting, []string{"investment", "investing", "venture", "funding", "capital", "investor"}},
	{DomainPhilosophy, []string{"philosophy", "principles", "beliefs", "values", "mindset"}},
}

// AssignDomain classifies a chunk by keyword match, defaulting to strategy.
func AssignDomain(chunkText string) Domain {
	lower := strings.ToLower(chunkText)
	for _, set := range domainKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(lower, kw) {
				return set.domain
			}
		}
	}
	return DomainStrategy
}
