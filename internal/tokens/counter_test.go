package tokens

import (
	"testing"

	"recursive-companion/internal/domain"
)

func TestCounter_Count(t *testing.T) {
	c := NewCounter("gpt-4o-mini")

	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}

	short := c.Count("hello")
	long := c.Count("hello world, this is a longer sentence about engagement metrics")
	if short <= 0 {
		t.Errorf("Count(short) = %d, want > 0", short)
	}
	if long <= short {
		t.Errorf("longer text counted %d tokens, short counted %d", long, short)
	}
}

func TestCounter_UnknownModelFallsBack(t *testing.T) {
	c := NewCounter("some-unknown-model")
	if got := c.Count("hello world"); got <= 0 {
		t.Errorf("Count() = %d, want > 0 via fallback encoding", got)
	}
}

func TestCounter_CountMessages(t *testing.T) {
	c := NewCounter("gpt-4o-mini")
	msgs := []domain.Message{
		{Role: domain.RoleHuman, Content: "why did engagement drop?"},
		{Role: domain.RoleAgent, Content: "posting cadence changed"},
	}
	sum := c.CountMessages(msgs)
	if sum != c.Count(msgs[0].Content)+c.Count(msgs[1].Content) {
		t.Error("CountMessages should sum per-message counts")
	}
}
