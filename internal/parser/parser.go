package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	separator     = "---"
)

type field int

const (
	none field = iota
	front
	back
	context
)

// deckParser accumulates lines into the field currently being read.
type deckParser struct {
	cards   []domain.ReviewCard
	current domain.ReviewCard
	field   field
	block   []string
}

// ParseFile reads a markdown deck from path and extracts all cards.
func ParseFile(path string) ([]domain.ReviewCard, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts cards from a markdown deck. A card starts at a "Q:" line,
// its answer at "A:", an optional context at "C:"; "---" ends a card.
// Only content fields are filled in; scheduling state is left to the caller.
func Parse(r io.Reader) ([]domain.ReviewCard, error) {
	scanner := bufio.NewScanner(r)
	p := &deckParser{}

	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}

func (p *deckParser) line(line string) {
	if line == separator {
		p.finishCard()
		return
	}

	switch {
	case strings.HasPrefix(line, frontPrefix):
		// A new question always starts a new card.
		p.finishCard()
		p.start(front, line[len(frontPrefix):])
	case strings.HasPrefix(line, backPrefix):
		p.flush()
		p.start(back, line[len(backPrefix):])
	case strings.HasPrefix(line, contextPrefix):
		p.flush()
		p.start(context, line[len(contextPrefix):])
	case p.field != none:
		p.block = append(p.block, line)
	}
}

func (p *deckParser) start(f field, rest string) {
	p.field = f
	p.block = append(p.block, strings.TrimPrefix(rest, " "))
}

// flush stores the accumulated block into the current field.
func (p *deckParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	switch p.field {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case context:
		p.current.Context = content
	}
	p.block = nil
}

func (p *deckParser) finishCard() {
	p.flush()
	if p.current.Front != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.ReviewCard{}
	p.field = none
}
