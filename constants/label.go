package constants

import (
	"strings"
)

// DocumentLabel is a loan-collateral document type.
type DocumentLabel string

const (
	Note         DocumentLabel = "Note"
	Mortgage     DocumentLabel = "Mortgage"
	DeedOfTrust  DocumentLabel = "Deed of Trust"
	Assignment   DocumentLabel = "Assignment"
	Allonge      DocumentLabel = "Allonge"
	Rider        DocumentLabel = "Rider"
	BaileeLetter DocumentLabel = "Bailee Letter"
	Unlabeled    DocumentLabel = "UNLABELED"
)

// DefaultConfidenceThreshold is the minimum model confidence for a page to keep its label.
const DefaultConfidenceThreshold = 0.85

var documentLabels = []DocumentLabel{
	Note,
	Mortgage,
	DeedOfTrust,
	Assignment,
	Allonge,
	Rider,
	BaileeLetter,
}

// DocumentLabels returns the labels a model may predict, excluding Unlabeled.
func DocumentLabels() []DocumentLabel {
	out := make([]DocumentLabel, len(documentLabels))
	copy(out, documentLabels)
	return out
}

// AsStringSlice returns the full vocabulary, Unlabeled last.
func AsStringSlice() []string {
	result := make([]string, 0, len(documentLabels)+1)
	for _, l := range documentLabels {
		result = append(result, string(l))
	}
	return append(result, string(Unlabeled))
}

// Canonicalize maps free-form label text (artifact labels, CLI input) onto the vocabulary.
func Canonicalize(input string) (DocumentLabel, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(input), " "))
	if normalized == "" {
		return Unlabeled, false
	}

	synonyms := map[string]DocumentLabel{
		"promissory note":        Note,
		"deed_of_trust":          DeedOfTrust,
		"deed-of-trust":          DeedOfTrust,
		"dot":                    DeedOfTrust,
		"security instrument":    Mortgage,
		"assignment of mortgage": Assignment,
		"aom":                    Assignment,
		"bailee_letter":          BaileeLetter,
		"bailee":                 BaileeLetter,
		"unknown":                Unlabeled,
	}
	if l, ok := synonyms[normalized]; ok {
		return l, true
	}

	for _, l := range documentLabels {
		if normalized == strings.ToLower(string(l)) {
			return l, true
		}
	}
	if normalized == strings.ToLower(string(Unlabeled)) {
		return Unlabeled, true
	}
	return Unlabeled, false
}
