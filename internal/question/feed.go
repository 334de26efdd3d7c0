package question

import (
	"math/rand/v2"
	"sync"

	"github.com/victornm/quizduel/internal/domain"
)

const DefaultCount = 50

// Feed draws randomized question sets from a fixed bank.
type Feed struct {
	bank []domain.Question

	mu  sync.Mutex
	rnd *rand.Rand
}

type Config struct {
	Bank []domain.Question
	// Rand is the shuffle source, defaults to an unseeded PCG.
	Rand *rand.Rand
}

func NewFeed(c Config) *Feed {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Feed{
		bank: c.Bank,
		rnd:  c.Rand,
	}
}

// Draw returns the first count questions of a uniformly shuffled copy of the bank,
// or all of them when the bank is smaller than count.
func (f *Feed) Draw(count int) []domain.Question {
	if count <= 0 {
		count = DefaultCount
	}

	qs := make([]domain.Question, len(f.bank))
	copy(qs, f.bank)

	f.mu.Lock()
	// rand.Shuffle is a Fisher-Yates shuffle.
	f.rnd.Shuffle(len(qs), func(i, j int) {
		qs[i], qs[j] = qs[j], qs[i]
	})
	f.mu.Unlock()

	if count < len(qs) {
		qs = qs[:count]
	}

	return qs
}

// Size is the number of questions in the bank.
func (f *Feed) Size() int {
	return len(f.bank)
}
