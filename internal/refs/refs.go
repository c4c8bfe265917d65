// Package refs генерирует человекочитаемые номера: PFX-######## для отправлений
// и TKT-######## для тикетов. Уникальность не проверяется, её гарантирует
// unique-ограничение в БД, коллизия всплывает как ошибка записи.
package refs

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	TrackingPrefix = "PFX"
	TicketPrefix   = "TKT"

	minNumber = 10000000
	maxNumber = 99999999
)

type Rand interface {
	Intn(n int) int
}

// lockedRand: *rand.Rand не потокобезопасен.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

var defaultRand Rand = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}

type Generator struct {
	r Rand
}

func NewGenerator(r Rand) *Generator {
	if r == nil {
		r = defaultRand
	}
	return &Generator{r: r}
}

// Generate возвращает "{prefix}-{N}", N равномерно из [10000000, 99999999].
func (g *Generator) Generate(prefix string) string {
	n := minNumber + g.r.Intn(maxNumber-minNumber+1)
	return fmt.Sprintf("%s-%d", prefix, n)
}

func (g *Generator) TrackingNumber() string { return g.Generate(TrackingPrefix) }

func (g *Generator) TicketNumber() string { return g.Generate(TicketPrefix) }

func TrackingNumber() string { return NewGenerator(nil).TrackingNumber() }

func TicketNumber() string { return NewGenerator(nil).TicketNumber() }
