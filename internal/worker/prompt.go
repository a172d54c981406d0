package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// LinePrompter reads one line of comma separated URLs per prompt. Prompts from concurrent
// workers are serialized.
type LinePrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter prompts on out and reads answers from in.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt asks for the URLs of src. End of input counts as an empty answer.
func (p *LinePrompter) Prompt(ctx context.Context, src crawler.SourceDefinition) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(p.out, "%s: enter article URL(s), comma separated (empty or 'skip' to skip): ", src.Name); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
