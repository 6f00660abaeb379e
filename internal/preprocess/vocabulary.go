package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Reserved ids.
const (
	PadID = 0
	OOVID = 1

	firstWordID = 2
)

// DefaultOOVToken marks out-of-vocabulary tokens in the exported word index.
const DefaultOOVToken = "<OOV>"

// VocabularyFormat identifies the exported vocabulary document.
const VocabularyFormat = "chat-sender-vocabulary.v1"

// Vocabulary maps tokens to dense ids. Words are ranked by frequency starting at id 2;
// only ids below MaxWords are emitted by ID, everything else is OOVID.
// A Vocabulary is immutable once built.
type Vocabulary struct {
	maxWords      int
	oovToken      string
	documentCount int
	ranked        []string
	index         map[string]int
	counts        map[string]int
}

// BuildVocabulary counts token frequencies over texts and ranks them.
// Ties are broken by first appearance, so identical input yields an identical mapping.
func BuildVocabulary(texts []string, maxWords int) (*Vocabulary, error) {
	if maxWords < firstWordID {
		return nil, fmt.Errorf("max vocabulary size must be at least %d, got %d", firstWordID, maxWords)
	}

	counts := make(map[string]int)
	var seen []string
	for _, text := range texts {
		for _, tok := range Tokenize(text) {
			if _, ok := counts[tok]; !ok {
				seen = append(seen, tok)
			}
			counts[tok]++
		}
	}

	ranked := make([]string, len(seen))
	copy(ranked, seen)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})

	return newVocabulary(maxWords, DefaultOOVToken, len(texts), ranked, counts), nil
}

func newVocabulary(maxWords int, oovToken string, documentCount int, ranked []string, counts map[string]int) *Vocabulary {
	index := make(map[string]int, len(ranked))
	for i, tok := range ranked {
		index[tok] = i + firstWordID
	}
	return &Vocabulary{
		maxWords:      maxWords,
		oovToken:      oovToken,
		documentCount: documentCount,
		ranked:        ranked,
		index:         index,
		counts:        counts,
	}
}

// ID returns the id of token, or OOVID when the token is unknown or beyond the cap.
func (v *Vocabulary) ID(token string) int {
	id, ok := v.index[token]
	if !ok || id >= v.maxWords {
		return OOVID
	}
	return id
}

// Size is the number of distinct ids Encode can emit, padding and OOV included.
func (v *Vocabulary) Size() int { return v.maxWords }

// Len is the number of distinct words observed, retained or not.
func (v *Vocabulary) Len() int { return len(v.ranked) }

// InVocabulary returns the retained words in id order.
func (v *Vocabulary) InVocabulary() []string {
	n := v.maxWords - firstWordID
	if n > len(v.ranked) {
		n = len(v.ranked)
	}
	out := make([]string, n)
	copy(out, v.ranked[:n])
	return out
}

// Fingerprint hashes the retained part of the mapping.
func (v *Vocabulary) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\t%d\n", v.oovToken, OOVID)
	for i, tok := range v.InVocabulary() {
		fmt.Fprintf(h, "%s\t%d\n", tok, i+firstWordID)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode maps text to exactly maxLen ids: earliest tokens are kept and the tail is padded with PadID.
func Encode(text string, v *Vocabulary, maxLen int) []int {
	out := make([]int, maxLen)
	for i, tok := range Tokenize(text) {
		if i >= maxLen {
			break
		}
		out[i] = v.ID(tok)
	}
	return out
}

// VocabularyFile is the exported, machine-readable tokenizer state.
type VocabularyFile struct {
	Format        string         `json:"format"`
	RunID         string         `json:"run_id"`
	NumWords      int            `json:"num_words"`
	OOVToken      string         `json:"oov_token"`
	Lower         bool           `json:"lower"`
	Filters       string         `json:"filters"`
	Split         string         `json:"split"`
	MaxLen        int            `json:"max_len"`
	Padding       string         `json:"padding"`
	Truncating    string         `json:"truncating"`
	DocumentCount int            `json:"document_count"`
	Fingerprint   string         `json:"fingerprint"`
	WordIndex     map[string]int `json:"word_index"`
	WordCounts    map[string]int `json:"word_counts"`
}

// Export captures the vocabulary together with the preprocessing settings it was used with.
func (v *Vocabulary) Export(runID string, maxLen int) *VocabularyFile {
	index := make(map[string]int, len(v.index)+1)
	for tok, id := range v.index {
		index[tok] = id
	}
	index[v.oovToken] = OOVID

	counts := make(map[string]int, len(v.counts))
	for tok, c := range v.counts {
		counts[tok] = c
	}

	return &VocabularyFile{
		Format:        VocabularyFormat,
		RunID:         runID,
		NumWords:      v.maxWords,
		OOVToken:      v.oovToken,
		Lower:         true,
		Filters:       Filters,
		Split:         Split,
		MaxLen:        maxLen,
		Padding:       "post",
		Truncating:    "post",
		DocumentCount: v.documentCount,
		Fingerprint:   v.Fingerprint(),
		WordIndex:     index,
		WordCounts:    counts,
	}
}

// Write encodes the document as indented JSON.
func (f *VocabularyFile) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}
	return nil
}

// ReadVocabularyFile decodes an exported vocabulary and checks its fingerprint.
func ReadVocabularyFile(r io.Reader) (*VocabularyFile, error) {
	var f VocabularyFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	if f.Format != VocabularyFormat {
		return nil, fmt.Errorf("unsupported vocabulary format %q", f.Format)
	}

	v, err := f.Vocabulary()
	if err != nil {
		return nil, err
	}
	if v.Fingerprint() != f.Fingerprint {
		return nil, errors.New("vocabulary fingerprint mismatch")
	}
	return &f, nil
}

// Vocabulary rebuilds the in-memory mapping from the exported word index.
func (f *VocabularyFile) Vocabulary() (*Vocabulary, error) {
	if f.NumWords < firstWordID {
		return nil, fmt.Errorf("invalid num_words %d", f.NumWords)
	}

	ranked := make([]string, 0, len(f.WordIndex))
	for tok, id := range f.WordIndex {
		if tok == f.OOVToken {
			if id != OOVID {
				return nil, fmt.Errorf("oov token %q has id %d, want %d", tok, id, OOVID)
			}
			continue
		}
		if id < firstWordID {
			return nil, fmt.Errorf("word %q has reserved id %d", tok, id)
		}
		ranked = append(ranked, tok)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return f.WordIndex[ranked[i]] < f.WordIndex[ranked[j]]
	})
	for i, tok := range ranked {
		if f.WordIndex[tok] != i+firstWordID {
			return nil, fmt.Errorf("word index is not dense at %q", tok)
		}
	}

	counts := make(map[string]int, len(f.WordCounts))
	for tok, c := range f.WordCounts {
		counts[tok] = c
	}
	return newVocabulary(f.NumWords, f.OOVToken, f.DocumentCount, ranked, counts), nil
}
