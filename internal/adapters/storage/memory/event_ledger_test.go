package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLedgerMarksDuplicates(t *testing.T) {
	l := NewEventLedger(4)

	assert.False(t, l.MarkSeen("a"))
	assert.True(t, l.MarkSeen("a"))
	assert.False(t, l.MarkSeen("b"))
	assert.Equal(t, 2, l.Len())
}

func TestEventLedgerEvictsOldest(t *testing.T) {
	l := NewEventLedger(2)

	l.MarkSeen("a")
	l.MarkSeen("b")
	l.MarkSeen("c")

	assert.Equal(t, 2, l.Len())
	assert.False(t, l.MarkSeen("a"), "oldest id should have been evicted")
	assert.True(t, l.MarkSeen("c"))
}

func TestEventLedgerConcurrentMarks(t *testing.T) {
	l := NewEventLedger(0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if !l.MarkSeen(fmt.Sprintf("id-%d", i%10)) {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, firsts)
}
