package order

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	numberTokenLen = 8
	base36         = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Sized for a day of heavy traffic on one instance; false positives only
	// cost an extra draw.
	numberBloomCapacity = 1_000_000
	numberBloomFPR      = 0.0001
)

// NumberGenerator issues human-readable order numbers of the form
// ORD-<unix millis>-<8 base36 chars>. Numbers already issued by this process
// are never repeated; collisions across instances are caught by the unique
// constraint and retried by the caller.
type NumberGenerator struct {
	mu   sync.Mutex
	seen *bloom.BloomFilter
	now  func() time.Time
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{
		seen: bloom.NewWithEstimates(numberBloomCapacity, numberBloomFPR),
		now:  time.Now,
	}
}

// Next returns a fresh order number.
func (g *NumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		n := "ORD-" + strconv.FormatInt(g.now().UnixMilli(), 10) + "-" + randomToken(numberTokenLen)
		if !g.seen.TestAndAddString(n) {
			return n
		}
	}
}

func randomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return string(b)
}
