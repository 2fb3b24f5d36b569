/**
 * Glossary of protected terms
 *
 * Terms are read once from a CSV file with a "term" column and never
 * change afterwards, so a Store is safe for concurrent readers.
 */

package glossary

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/adverant/nexus/doctranslate-worker/internal/errors"
	"github.com/adverant/nexus/doctranslate-worker/internal/logging"
)

// TermColumn is the header of the column holding protected terms.
const TermColumn = "term"

// Store is an immutable set of protected terms.
type Store struct {
	terms []string // sorted by descending length, then lexically
}

// New builds a store from raw terms. Entries are trimmed; empty and
// duplicate entries are dropped.
func New(terms ...string) *Store {
	s := &Store{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		s.terms = append(s.terms, t)
	}
	sort.Slice(s.terms, func(i, j int) bool {
		if len(s.terms[i]) != len(s.terms[j]) {
			return len(s.terms[i]) > len(s.terms[j])
		}
		return s.terms[i] < s.terms[j]
	})
	return s
}

// Empty returns a store with no terms.
func Empty() *Store {
	return New()
}

// Load reads terms from the CSV file at path. Failures are reported as
// GlossaryLoadError; use LoadOrEmpty where the pipeline must not block.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewGlossaryLoadError(path, err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse reads terms from CSV content. source names the input in errors.
func Parse(r io.Reader, source string) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("empty glossary")
		}
		return nil, errors.NewGlossaryLoadError(source, err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), TermColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.NewGlossaryLoadError(source, fmt.Errorf("no %q column in header %v", TermColumn, header))
	}

	var terms []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewGlossaryLoadError(source, err)
		}
		if col < len(record) {
			terms = append(terms, record[col])
		}
	}

	return New(terms...), nil
}

// LoadOrEmpty loads the glossary and degrades to an empty store on any
// failure, logging the reason.
func LoadOrEmpty(path string, logger *logging.Logger) *Store {
	s, err := Load(path)
	if err != nil {
		logger.Warn("Glossary unavailable, translating without term protection",
			"path", path,
			"error", err)
		return Empty()
	}
	logger.Info("Glossary loaded", "path", path, "terms", s.Len())
	return s
}

// Terms returns the terms longest first. The slice must not be modified.
func (s *Store) Terms() []string {
	return s.terms
}

// Len returns the number of terms.
func (s *Store) Len() int {
	return len(s.terms)
}
