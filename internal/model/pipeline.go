package model

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

var reToken = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Pipeline is a compiled, immutable artifact. Safe for concurrent use.
type Pipeline struct {
	meta Metadata

	lowercase   bool
	ngramMin    int
	ngramMax    int
	sublinear   bool
	l2          bool
	vocabulary  map[string]int
	idf         []float64
	labels      []string
	coef        [][]float64
	intercept   []float64
	binary      bool
	temperature float64
}

// Compile validates a and builds a Pipeline from it.
func Compile(a *Artifact) (*Pipeline, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: inconsistent artifact: %w", common.ErrModelLoad, err)
	}
	lo, hi := a.Vectorizer.ngrams()
	temp := a.Classifier.Temperature
	if temp == 0 {
		temp = 1
	}
	return &Pipeline{
		meta:        a.Metadata(),
		lowercase:   a.Vectorizer.Lowercase,
		ngramMin:    lo,
		ngramMax:    hi,
		sublinear:   a.Vectorizer.SublinearTF,
		l2:          a.Vectorizer.Norm != "none",
		vocabulary:  a.Vectorizer.Vocabulary,
		idf:         a.Vectorizer.IDF,
		labels:      a.Labels,
		coef:        a.Classifier.Coef,
		intercept:   a.Classifier.Intercept,
		binary:      len(a.Classifier.Coef) == 1,
		temperature: temp,
	}, nil
}

func (p *Pipeline) Metadata() Metadata { return p.meta }

// Labels returns the labels the pipeline can emit, in score order.
func (p *Pipeline) Labels() []string { return append([]string(nil), p.labels...) }

// Classify returns the best label and its probability for text.
// Empty text is valid input and scores on the intercepts alone.
func (p *Pipeline) Classify(text string) (string, float64, error) {
	probs, err := p.Probabilities(text)
	if err != nil {
		return "", 0, err
	}
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return p.labels[best], probs[best], nil
}

// Probabilities returns one probability per label, summing to 1.
func (p *Pipeline) Probabilities(text string) ([]float64, error) {
	if p == nil || len(p.labels) < 2 || len(p.coef) == 0 || len(p.intercept) != len(p.coef) {
		return nil, fmt.Errorf("%w: pipeline is not initialized", common.ErrModelInvocation)
	}
	x := p.transform(text)

	scores := make([]float64, len(p.coef))
	for k, row := range p.coef {
		if len(row) != len(p.idf) {
			return nil, fmt.Errorf("%w: coef row %d has %d features, want %d", common.ErrModelInvocation, k, len(row), len(p.idf))
		}
		s := p.intercept[k]
		for col, val := range x {
			s += row[col] * val
		}
		scores[k] = s
	}
	if p.binary {
		scores = []float64{0, scores[0]}
	}
	if len(scores) != len(p.labels) {
		return nil, fmt.Errorf("%w: %d scores for %d labels", common.ErrModelInvocation, len(scores), len(p.labels))
	}

	probs := softmax(scores, p.temperature)
	for i, pr := range probs {
		if math.IsNaN(pr) || math.IsInf(pr, 0) {
			return nil, fmt.Errorf("%w: non-finite score for %q", common.ErrModelInvocation, p.labels[i])
		}
	}
	return probs, nil
}

// transform returns the sparse TF-IDF vector of text as column -> weight.
func (p *Pipeline) transform(text string) map[int]float64 {
	if p.lowercase {
		text = strings.ToLower(text)
	}
	tokens := reToken.FindAllString(text, -1)

	counts := make(map[int]float64)
	for n := p.ngramMin; n <= p.ngramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			term := tokens[i]
			if n > 1 {
				term = strings.Join(tokens[i:i+n], " ")
			}
			if col, ok := p.vocabulary[term]; ok {
				counts[col]++
			}
		}
	}

	var norm float64
	for col, tf := range counts {
		if p.sublinear {
			tf = 1 + math.Log(tf)
		}
		w := tf * p.idf[col]
		counts[col] = w
		norm += w * w
	}
	if p.l2 && norm > 0 {
		norm = math.Sqrt(norm)
		for col := range counts {
			counts[col] /= norm
		}
	}
	return counts
}

func softmax(scores []float64, temperature float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp((s - maxScore) / temperature)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
