// Package tokens provides tiktoken-based token counting, used to keep a
// companion's bounded history within a model-token budget.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"recursive-companion/internal/domain"
)

// Counter counts model tokens for history trimming. The codec is resolved
// once per counter and cached; Counter is safe for concurrent use.
type Counter struct {
	model string

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewCounter creates a counter for the given model name. Unknown models
// fall back to the cl100k_base encoding.
func NewCounter(model string) *Counter {
	return &Counter{model: model}
}

func (c *Counter) load() {
	c.codec, c.err = tokenizer.ForModel(tokenizer.Model(c.model))
	if c.err != nil {
		c.codec, c.err = tokenizer.Get(tokenizer.Cl100kBase)
	}
}

// Count returns the token count of text. When no codec is available at
// all it falls back to a bytes/4 estimate rather than failing: history
// trimming is a bound, not an exact science.
func (c *Counter) Count(text string) int {
	c.once.Do(c.load)
	if c.err != nil {
		return len(text) / 4
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// CountMessages sums the token counts of every message's content.
func (c *Counter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content)
	}
	return total
}
