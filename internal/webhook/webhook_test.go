package webhook

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	l := NewLog(10)
	ev := l.Record("github", map[string]interface{}{"action": "push"})
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.Timestamp)
	assert.Equal(t, "github", ev.WebhookID)
}

func TestRecentNewestFirst(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 3; i++ {
		l.Record("hook", map[string]interface{}{"seq": i})
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Payload["seq"])
	assert.Equal(t, 1, recent[1].Payload["seq"])

	assert.Len(t, l.Recent(0), 3, "non-positive n returns everything")
}

func TestCapacityEvictsOldest(t *testing.T) {
	l := NewLog(5)
	for i := 0; i < 8; i++ {
		l.Record("hook", map[string]interface{}{"seq": i})
	}

	assert.Equal(t, 5, l.Len())
	recent := l.Recent(5)
	assert.Equal(t, 7, recent[0].Payload["seq"])
	assert.Equal(t, 3, recent[4].Payload["seq"], "oldest retained entry")
}

func TestDefaultCapacityExceedsReadLimit(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < 60; i++ {
		l.Record("hook", map[string]interface{}{"seq": i})
	}

	// retention is wider than any single read window
	assert.Equal(t, 60, l.Len())
	recent := l.Recent(20)
	require.Len(t, recent, 20)
	assert.Equal(t, 59, recent[0].Payload["seq"])
	assert.Equal(t, 40, recent[19].Payload["seq"])
}

func TestConcurrentRecord(t *testing.T) {
	l := NewLog(100)
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				l.Record(fmt.Sprintf("hook-%d", g), map[string]interface{}{"seq": i})
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	assert.Equal(t, 100, l.Len())
}
