package news

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Feasibility is an externally supplied research feasibility score. The
// engine treats it as opaque structured input.
type Feasibility struct {
	Topic string  `json:"topic"`
	Score float64 `json:"score"` // [0, 1]
}

// TechnologyEffect is an externally supplied technology definition. Only the
// efficiency bonus is interpreted by the engine; the rest is passthrough for
// the UI.
type TechnologyEffect struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BuildingCategory string  `json:"building_category"`
	EfficiencyBonus  float64 `json:"efficiency_bonus"`
	Description      string  `json:"description"`
}

// DecodeTechnologyEffects parses a structured technology payload.
func DecodeTechnologyEffects(data []byte) ([]TechnologyEffect, error) {
	var effects []TechnologyEffect
	if err := json.Unmarshal(data, &effects); err != nil {
		return nil, fmt.Errorf("decode technology effects: %w", err)
	}
	for i, e := range effects {
		if e.ID == "" {
			return nil, fmt.Errorf("technology effect %d: empty id", i)
		}
		if e.EfficiencyBonus < 0 {
			return nil, fmt.Errorf("technology effect %q: negative efficiency bonus", e.ID)
		}
	}
	return effects, nil
}

// ResearchResult bundles a feasibility score with the technology effects the
// research would unlock.
type ResearchResult struct {
	Feasibility Feasibility        `json:"feasibility"`
	Effects     []TechnologyEffect `json:"effects"`
}

// RequestResearch asks the content service to assess a research topic.
// Without a client it returns a neutral canned result so the game keeps
// moving offline.
func RequestResearch(client *Client, topic string) (*ResearchResult, error) {
	if !client.Enabled() {
		return &ResearchResult{
			Feasibility: Feasibility{Topic: topic, Score: 0.5},
		}, nil
	}

	system := `You assess industrial research proposals for an economy game. Respond with only a JSON object: {"feasibility": {"topic": string, "score": number 0-1}, "effects": [{"id": string, "name": string, "building_category": string, "efficiency_bonus": number 0-0.5, "description": string}]}. No prose.`

	raw, err := client.Complete(system, fmt.Sprintf("Research topic: %s", topic), 600)
	if err != nil {
		return nil, fmt.Errorf("research request: %w", err)
	}

	// Models sometimes fence the JSON; strip that before decoding.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var result ResearchResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &result); err != nil {
		return nil, fmt.Errorf("parse research response: %w", err)
	}
	if result.Feasibility.Score < 0 {
		result.Feasibility.Score = 0
	}
	if result.Feasibility.Score > 1 {
		result.Feasibility.Score = 1
	}
	result.Feasibility.Topic = topic
	return &result, nil
}
