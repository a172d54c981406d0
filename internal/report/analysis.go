package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mkonefal2/clickbait-verifier/internal/crawler"
)

// AnalysisPayload is one scoring agent result as received from the agent. Older agent versions
// send "reasons" instead of "rationale".
type AnalysisPayload struct {
	ID         string         `json:"id"`
	Score      *float64       `json:"score"`
	Label      string         `json:"label"`
	Rationale  []string       `json:"rationale"`
	Reasons    []string       `json:"reasons"`
	Summary    string         `json:"summary"`
	Signals    map[string]any `json:"signals"`
	AnalyzedAt *time.Time     `json:"analyzed_at"`
}

// Analysis validates the payload and converts it. now stamps payloads without analyzed_at.
func (p AnalysisPayload) Analysis(now time.Time) (crawler.Analysis, error) {
	if p.Score == nil {
		return crawler.Analysis{}, errors.New("score is required")
	}
	a := crawler.Analysis{
		Score:     *p.Score,
		Label:     strings.TrimSpace(p.Label),
		Rationale: p.Rationale,
		Summary:   p.Summary,
		Signals:   p.Signals,
	}
	if len(a.Rationale) == 0 {
		a.Rationale = p.Reasons
	}
	if a.Rationale == nil {
		a.Rationale = []string{}
	}
	a.AnalyzedAt = now
	if p.AnalyzedAt != nil && !p.AnalyzedAt.IsZero() {
		a.AnalyzedAt = *p.AnalyzedAt
	}
	if err := a.Validate(); err != nil {
		return crawler.Analysis{}, err
	}
	return a, nil
}

// DecodeAnalyses reads a JSON array of payloads, or a single payload object.
func DecodeAnalyses(r io.Reader) ([]AnalysisPayload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read analyses: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var one AnalysisPayload
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		return []AnalysisPayload{one}, nil
	}
	var many []AnalysisPayload
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("decode analyses: %w", err)
	}
	return many, nil
}
