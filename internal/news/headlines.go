package news

import (
	"fmt"
	"sort"
	"strings"
)

// Digest is the raw per-tick material headlines are written from.
type Digest struct {
	Tick int64

	// Top price movers: goods name → signed percent change.
	PriceMoves map[string]float64

	// Recent competition event descriptions, most recent first.
	Events []string

	// Market leaders: goods name → leading company name.
	Leaders map[string]string
}

// GenerateHeadlines produces up to max short news headlines for the current
// tick. Without a configured client (or on API failure) it falls back to
// deterministic headlines assembled from the digest.
func GenerateHeadlines(client *Client, d *Digest, max int) []string {
	if max <= 0 {
		max = 5
	}
	if !client.Enabled() {
		return fallbackHeadlines(d, max)
	}

	system := `You are the markets desk of a business daily covering an industrial economy. Write terse, punchy headlines about price moves, production, and corporate rivalry. One headline per line, no numbering, no quotes, under 12 words each. Do not mention that this is a simulation.`

	headlines, err := client.Complete(system, buildDigestPrompt(d, max), 300)
	if err != nil {
		return fallbackHeadlines(d, max)
	}

	var out []string
	for _, line := range strings.Split(headlines, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		return fallbackHeadlines(d, max)
	}
	return out
}

func buildDigestPrompt(d *Digest, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write up to %d headlines from today's market data.\n\nPrice moves:\n", max)
	for goods, pct := range d.PriceMoves {
		fmt.Fprintf(&b, "- %s: %+.1f%%\n", goods, pct)
	}
	if len(d.Leaders) > 0 {
		b.WriteString("\nMarket leaders:\n")
		for goods, name := range d.Leaders {
			fmt.Fprintf(&b, "- %s: %s\n", goods, name)
		}
	}
	if len(d.Events) > 0 {
		b.WriteString("\nCompetitive events:\n")
		for i, e := range d.Events {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}

// fallbackHeadlines is the no-LLM path: plain headlines straight from the
// digest, in a stable order.
func fallbackHeadlines(d *Digest, max int) []string {
	var out []string
	for _, e := range d.Events {
		out = append(out, e)
		if len(out) == max {
			return out
		}
	}
	for _, goods := range sortedKeys(d.PriceMoves) {
		pct := d.PriceMoves[goods]
		switch {
		case pct >= 5:
			out = append(out, fmt.Sprintf("%s prices surge %.1f%%", goods, pct))
		case pct <= -5:
			out = append(out, fmt.Sprintf("%s prices slide %.1f%%", goods, -pct))
		}
		if len(out) == max {
			return out
		}
	}
	if len(out) == 0 {
		out = append(out, "Markets quiet as trading continues")
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
