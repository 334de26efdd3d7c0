package question

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/victornm/quizduel/internal/domain"
)

//go:embed bank.json
var embeddedBank []byte

// Embedded returns the question bank compiled into the binary.
func Embedded() ([]domain.Question, error) {
	return LoadJSON(bytes.NewReader(embeddedBank))
}

// LoadFile reads a JSON question bank from disk.
func LoadFile(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()

	return LoadJSON(f)
}

// LoadJSON decodes a JSON array of questions and validates every record.
func LoadJSON(r io.Reader) ([]domain.Question, error) {
	var qs []domain.Question
	if err := json.NewDecoder(r).Decode(&qs); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}

	if err := Validate(qs); err != nil {
		return nil, err
	}

	return qs, nil
}

// Validate checks that the bank is not empty and every answer is one of its options.
func Validate(qs []domain.Question) error {
	if len(qs) == 0 {
		return fmt.Errorf("question bank is empty")
	}

	for i, q := range qs {
		if q.Prompt == "" {
			return fmt.Errorf("question %d: empty prompt", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d: need at least 2 options, got %d", i, len(q.Options))
		}
		if !slices.Contains(q.Options, q.Answer) {
			return fmt.Errorf("question %d: answer %q is not an option", i, q.Answer)
		}
	}

	return nil
}
