// Package deck loads the static card catalog and derives per-session
// draw pools from it.
package deck

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed catalog.json
var defaultCatalog []byte

// Card is one catalog entry, tagged with the deck it belongs to.
type Card struct {
	Text string `json:"text"`
	Deck string `json:"deck"`
}

// Catalog is the immutable card dataset loaded at startup.
type Catalog struct {
	Black []Card `json:"black"`
	White []Card `json:"white"`
}

// Load reads a catalog from path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &c, nil
}

// Decks returns the sorted distinct deck ids present in the catalog.
func (c *Catalog) Decks() []string {
	seen := map[string]bool{}
	for _, card := range c.Black {
		seen[card.Deck] = true
	}
	for _, card := range c.White {
		seen[card.Deck] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pools are a session's shuffled draw stacks. Drawing pops from the end.
type Pools struct {
	Black []string
	White []string
}

// Pools filters the catalog to the selected decks, formats the card
// text, and returns freshly shuffled draw stacks.
func (c *Catalog) Pools(decks []string) *Pools {
	selected := map[string]bool{}
	for _, d := range decks {
		selected[d] = true
	}
	pick := func(cards []Card) []string {
		var out []string
		for _, card := range cards {
			if selected[card.Deck] {
				out = append(out, formatCard(card.Text))
			}
		}
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	return &Pools{Black: pick(c.Black), White: pick(c.White)}
}

var emphasis = regexp.MustCompile(`\*(.+?)\*`)

// formatCard normalizes the markdown-ish catalog text to the HTML the
// client renders: literal \n sequences become <br/> and *emphasis*
// becomes <em>emphasis</em>.
func formatCard(text string) string {
	text = strings.ReplaceAll(text, `\n`, "<br/>")
	return emphasis.ReplaceAllString(text, "<em>$1</em>")
}

// DrawBlack pops the next prompt card. ok is false when the pool is
// exhausted; callers log and carry on.
func (p *Pools) DrawBlack() (card string, ok bool) {
	if len(p.Black) == 0 {
		return "", false
	}
	card = p.Black[len(p.Black)-1]
	p.Black = p.Black[:len(p.Black)-1]
	return card, true
}

// DrawWhite pops the next response card.
func (p *Pools) DrawWhite() (card string, ok bool) {
	if len(p.White) == 0 {
		return "", false
	}
	card = p.White[len(p.White)-1]
	p.White = p.White[:len(p.White)-1]
	return card, true
}

// Slots is the number of white cards a prompt calls for: one per blank
// placeholder, minimum one for prompts phrased as questions.
func Slots(blackCard string) int {
	if n := strings.Count(blackCard, "_"); n > 0 {
		return n
	}
	return 1
}
