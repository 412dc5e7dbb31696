/**
 * Frequency dictionaries
 *
 * A dictionary directory holds plain-text ".txt" files. Unigram files carry
 * "term count" lines, bigram files (any file whose name contains "bigram")
 * carry "term1 term2 count" lines. Counts for repeated terms are summed
 * across files.
 */

package spellcheck

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/symspell"
)

const byteOrderMark = "\uFEFF"

// DictionaryFile is one discovered frequency file
type DictionaryFile struct {
	Path   string
	Bigram bool
}

// DiscoverDictionaries lists the frequency files in dir in name order
func DiscoverDictionaries(dir string) ([]DictionaryFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taraerrors.NewNotFoundError(dir)
		}
		return nil, fmt.Errorf("failed to read dictionary directory %s: %w", dir, err)
	}

	var files []DictionaryFile
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		files = append(files, DictionaryFile{
			Path:   filepath.Join(dir, e.Name()),
			Bigram: strings.Contains(strings.ToLower(e.Name()), "bigram"),
		})
	}

	if len(files) == 0 {
		return nil, taraerrors.NewEmptySetError("dictionaries", dir)
	}
	return files, nil
}

// ReadFrequencies parses frequency lines from r, calling fn for each entry.
// Malformed lines are skipped and counted.
func ReadFrequencies(r io.Reader, bigram bool, fn func(term string, count int64)) (skipped int, err error) {
	fields := 2
	if bigram {
		fields = 3
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, byteOrderMark)
			first = false
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if len(parts) < fields {
			skipped++
			continue
		}

		count, err := strconv.ParseInt(parts[fields-1], 10, 64)
		if err != nil || count <= 0 {
			skipped++
			continue
		}
		fn(strings.Join(parts[:fields-1], " "), count)
	}

	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to read frequencies: %w", err)
	}
	return skipped, nil
}

// LoadStats summarizes a dictionary load
type LoadStats struct {
	Files   int
	Words   int
	Bigrams int
	Skipped int
}

// LoadDictionaries reads every file in dir into a new index
func LoadDictionaries(dir string, maxEditDistance int) (*symspell.SymSpell, LoadStats, error) {
	var stats LoadStats

	files, err := DiscoverDictionaries(dir)
	if err != nil {
		return nil, stats, err
	}

	sym, err := symspell.New(maxEditDistance, symspell.DefaultPrefixLength)
	if err != nil {
		return nil, stats, err
	}

	for _, f := range files {
		add := func(term string, count int64) { sym.Add(term, count) }
		if f.Bigram {
			add = sym.AddBigram
		}

		skipped, err := readFile(f.Path, f.Bigram, add)
		if err != nil {
			return nil, stats, err
		}
		stats.Files++
		stats.Skipped += skipped
	}

	stats.Words = sym.WordCount()
	stats.Bigrams = sym.BigramCount()
	if stats.Words == 0 && stats.Bigrams == 0 {
		return nil, stats, taraerrors.NewEmptySetError("dictionary entries", dir)
	}
	return sym, stats, nil
}

func readFile(path string, bigram bool, fn func(string, int64)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, taraerrors.NewNotFoundError(path)
		}
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	skipped, err := ReadFrequencies(f, bigram, fn)
	if err != nil {
		return skipped, fmt.Errorf("%s: %w", path, err)
	}
	return skipped, nil
}

// CountWords builds a frequency map from running text, splitting on spaces
func CountWords(r io.Reader) (map[string]int64, error) {
	freq := make(map[string]int64)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), byteOrderMark, "")
		for _, w := range strings.Split(line, " ") {
			if w != "" {
				freq[w]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to count words: %w", err)
	}
	return freq, nil
}

// MergeFrequencyFiles sums the counts of unigram files
func MergeFrequencyFiles(paths []string) (map[string]int64, error) {
	merged := make(map[string]int64)
	for _, p := range paths {
		if _, err := readFile(p, false, func(term string, count int64) {
			merged[term] += count
		}); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// WriteFrequencyList writes freq as "term count" lines, most frequent first
func WriteFrequencyList(w io.Writer, freq map[string]int64) error {
	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	bw := bufio.NewWriter(w)
	for _, t := range terms {
		if _, err := fmt.Fprintf(bw, "%s %d\n", t, freq[t]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
