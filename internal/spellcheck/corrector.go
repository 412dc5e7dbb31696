/**
 * Corrector - clause-level spelling correction for OCR output
 *
 * A paragraph is split on punctuation into clauses. Each clause is corrected
 * with a compound dictionary lookup and the paragraph is restitched around
 * the original punctuation. A clause that cannot be corrected is kept as is;
 * a paragraph that cannot be corrected is kept as is.
 */

package spellcheck

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	taraerrors "github.com/belfastkeyboard/TARA/internal/errors"
	"github.com/belfastkeyboard/TARA/internal/logging"
	"github.com/belfastkeyboard/TARA/internal/symspell"
)

// DefaultMaxEditDistance is the lookup distance used when none is configured
const DefaultMaxEditDistance = 2

// minClauseLength is the shortest trimmed clause worth looking up
const minClauseLength = 2

// CorrectorConfig holds corrector configuration
type CorrectorConfig struct {
	DictionaryDir   string
	MaxEditDistance int
	Logger          *logging.Logger
}

// Corrector corrects OCR text against frequency dictionaries. It is safe for
// concurrent use once constructed.
type Corrector struct {
	sym             *symspell.SymSpell
	maxEditDistance int
	logger          *logging.Logger
}

// NewCorrector loads the dictionaries in cfg.DictionaryDir
func NewCorrector(cfg *CorrectorConfig) (*Corrector, error) {
	if cfg.DictionaryDir == "" {
		return nil, fmt.Errorf("dictionary directory is required")
	}
	if cfg.MaxEditDistance < 0 {
		return nil, fmt.Errorf("max edit distance must not be negative, got %d", cfg.MaxEditDistance)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("spellcheck")
	}

	start := time.Now()
	sym, stats, err := LoadDictionaries(cfg.DictionaryDir, cfg.MaxEditDistance)
	if err != nil {
		return nil, err
	}

	logger.Info("dictionaries loaded",
		"dir", cfg.DictionaryDir,
		"files", stats.Files,
		"words", stats.Words,
		"bigrams", stats.Bigrams,
		"skipped_lines", stats.Skipped,
		"elapsed", time.Since(start),
	)

	return NewCorrectorWith(sym, cfg.MaxEditDistance, logger), nil
}

// NewCorrectorWith wraps an already loaded index
func NewCorrectorWith(sym *symspell.SymSpell, maxEditDistance int, logger *logging.Logger) *Corrector {
	if logger == nil {
		logger = logging.NewLogger("spellcheck")
	}
	return &Corrector{
		sym:             sym,
		maxEditDistance: min(maxEditDistance, sym.MaxEditDistance()),
		logger:          logger,
	}
}

// CorrectClause returns the best dictionary correction of clause, or clause itself
func (c *Corrector) CorrectClause(clause string) string {
	return c.correctClause(c.logger, clause)
}

func (c *Corrector) correctClause(logger *logging.Logger, clause string) string {
	if utf8.RuneCountInString(strings.TrimSpace(clause)) < minClauseLength {
		return clause
	}

	suggestions, err := c.sym.LookupCompound(clause, c.maxEditDistance, true)
	if taraerrors.HasCode(err, taraerrors.ErrorEncoding) {
		repaired, rerr := RepairEncoding(clause)
		if rerr != nil {
			logger.Warn("clause left uncorrected",
				"clause", clause,
				"error_code", taraerrors.CodeOf(rerr),
				"error", rerr,
			)
			return clause
		}
		suggestions, err = c.sym.LookupCompound(repaired, c.maxEditDistance, true)
	}
	if err != nil {
		logger.Warn("clause left uncorrected",
			"clause", clause,
			"error_code", taraerrors.CodeOf(err),
			"error", err,
		)
		return clause
	}

	if len(suggestions) == 0 || suggestions[0].Term == "" {
		return clause
	}
	return suggestions[0].Term
}

// Spellcheck corrects one paragraph
func (c *Corrector) Spellcheck(paragraph string) string {
	clauses, offsets := Prepare(paragraph)
	for i, clause := range clauses {
		clauses[i] = c.correctClause(c.logger.With("index", i), clause)
	}

	out, err := Restitch(clauses, offsets, paragraph)
	if err != nil {
		c.logger.Warn("paragraph left uncorrected",
			"error_code", taraerrors.CodeOf(err),
			"error", err,
		)
	}
	return out
}

// SpellcheckBatch corrects paragraphs in order. A paragraph that fails is
// kept unchanged; progress, if set, is called after every paragraph.
func (c *Corrector) SpellcheckBatch(ctx context.Context, paragraphs []string, progress func(done, total int)) ([]string, error) {
	start := time.Now()
	out := make([]string, 0, len(paragraphs))
	failed := 0

	for i, p := range paragraphs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		corrected, err := c.safeSpellcheck(p)
		if err != nil {
			failed++
			c.logger.Warn("paragraph skipped",
				"index", i,
				"error", err,
			)
			corrected = p
		}
		out = append(out, corrected)

		if progress != nil {
			progress(i+1, len(paragraphs))
		}
	}

	c.logger.Info("spellcheck complete",
		"paragraphs", len(paragraphs),
		"failed", failed,
		"elapsed", time.Since(start),
	)
	return out, nil
}

func (c *Corrector) safeSpellcheck(p string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spellcheck panicked: %v", r)
		}
	}()
	return c.Spellcheck(p), nil
}
