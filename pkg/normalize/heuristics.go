package normalize

import (
	"regexp"
	"strings"

	"github.com/menta2k/waste-analyzer/pkg/estimate"
	"github.com/menta2k/waste-analyzer/pkg/types"
)

// Heuristics holds the keyword sets used to recover an item from prose when
// the model reply carries no JSON at all.
type Heuristics struct {
	// ObjectNouns are matched inside quoted or bold phrases to find the object.
	ObjectNouns []string `yaml:"object_nouns" json:"object_nouns"`
	// Materials are matched as whole words; the leftmost hit wins.
	Materials []string `yaml:"materials" json:"materials"`
	// DisposalPhrases select the first sentence used as disposal instructions.
	DisposalPhrases []string `yaml:"disposal_phrases" json:"disposal_phrases"`
	// NothingFound phrases mark a reply, or an item label, meaning no waste.
	NothingFound []string `yaml:"nothing_found" json:"nothing_found"`

	DefaultBox          [4]float64 `yaml:"default_box" json:"default_box"`
	DefaultInstructions string     `yaml:"default_instructions" json:"default_instructions"`
	DescriptionLimit    int        `yaml:"description_limit" json:"description_limit"`
}

// Default returns the stock keyword sets.
func Default() Heuristics {
	return Heuristics{
		ObjectNouns: []string{
			"bottle", "can", "bag", "container", "cup", "wrapper",
			"package", "box", "balloon",
		},
		Materials: []string{
			"plastic", "metal", "aluminum", "paper", "cardboard", "glass",
			"organic", "mylar", "foil", "nylon",
		},
		DisposalPhrases: []string{
			"recycl", "dispose", "disposal", "bin", "compost", "landfill",
			"throw", "rinse", "drop-off", "drop off",
		},
		NothingFound: []string{
			"no waste", "no garbage", "no trash", "no litter", "no item",
			"nothing detected", "nothing found", "not detected",
		},
		DefaultBox:          [4]float64{10, 10, 80, 80},
		DefaultInstructions: "Place in appropriate waste bin",
		DescriptionLimit:    150,
	}
}

// withDefaults fills empty fields from Default.
func (h Heuristics) withDefaults() Heuristics {
	d := Default()
	if len(h.ObjectNouns) == 0 {
		h.ObjectNouns = d.ObjectNouns
	}
	if len(h.Materials) == 0 {
		h.Materials = d.Materials
	}
	if len(h.DisposalPhrases) == 0 {
		h.DisposalPhrases = d.DisposalPhrases
	}
	if len(h.NothingFound) == 0 {
		h.NothingFound = d.NothingFound
	}
	if h.DefaultBox == [4]float64{} {
		h.DefaultBox = d.DefaultBox
	}
	if h.DefaultInstructions == "" {
		h.DefaultInstructions = d.DefaultInstructions
	}
	if h.DescriptionLimit <= 0 {
		h.DescriptionLimit = d.DescriptionLimit
	}
	return h
}

type matchers struct {
	object   *regexp.Regexp
	material *regexp.Regexp
	sentence *regexp.Regexp
	article  *regexp.Regexp
}

func compileMatchers(h Heuristics) matchers {
	return matchers{
		object: regexp.MustCompile(`(?i)(?:\*\*|")([^"*\n]*\b(?:` + alternation(h.ObjectNouns) +
			`)(?:s|es)?\b[^"*\n]*)(?:\*\*|")`),
		material: regexp.MustCompile(`(?i)\b(` + alternation(h.Materials) + `)\b`),
		sentence: regexp.MustCompile(`[^.!?\n]+[.!?]?`),
		article:  regexp.MustCompile(`(?i)^(the|a|an)\s+`),
	}
}

// extract recovers a single low-confidence item from prose, or the empty
// result when the prose says nothing was found.
func (n *Normalizer) extract(text string) types.AnalysisResult {
	object := ""
	if m := n.match.object.FindStringSubmatch(text); m != nil {
		object = n.match.article.ReplaceAllString(strings.TrimSpace(m[1]), "")
	}
	if object == "" && n.mentionsNothing(text) {
		return types.Empty()
	}
	if object == "" {
		object = "Unknown item"
	}

	material := "Unknown"
	if m := n.match.material.FindStringSubmatch(text); m != nil {
		material = strings.TrimSpace(m[1])
	}

	box := types.BoundingBox{
		X: n.heur.DefaultBox[0],
		Y: n.heur.DefaultBox[1],
		W: n.heur.DefaultBox[2],
		H: n.heur.DefaultBox[3],
	}.Clamp()

	return types.Single(types.DetectedItem{
		Object:               object,
		Material:             material,
		DisposalInstructions: n.disposalSentence(text),
		PointsEarned:         estimate.PointsForMaterial(material),
		Description:          n.summary(text),
		BoundingBox:          &box,
		Heuristic:            true,
	})
}

func (n *Normalizer) disposalSentence(text string) string {
	for _, s := range n.match.sentence.FindAllString(text, -1) {
		s = strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
		if s == "" {
			continue
		}
		if containsAny(strings.ToLower(s), n.heur.DisposalPhrases) {
			return s
		}
	}
	return n.heur.DefaultInstructions
}

func (n *Normalizer) summary(text string) string {
	r := []rune(text)
	if len(r) > n.heur.DescriptionLimit {
		r = r[:n.heur.DescriptionLimit]
	}
	return strings.TrimSpace(strings.ReplaceAll(string(r), "**", "")) + "..."
}

func (n *Normalizer) mentionsNothing(text string) bool {
	return containsAny(strings.ToLower(text), n.heur.NothingFound)
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return strings.Join(quoted, "|")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
