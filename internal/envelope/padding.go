package envelope

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
	"time"

	"github.com/nymquest/nymquest/internal/xrand"
)

// bucketLadder is the base bucket ladder from spec.md §4.1.
var bucketLadder = []int{128, 256, 512, 1024, 2048, 4096}

// MaxPayloadSize is the largest accepted pre-padding payload.
const MaxPayloadSize = 4096

// strategy names the jitter strategy rotation, spec.md §4.1.
type strategy uint8

const (
	strategyCount strategy = iota
	strategyTime
	strategyCombined
	strategyRandom
)

var strategyOrder = []strategy{strategyCount, strategyTime, strategyCombined, strategyRandom}

const (
	jitterMin = 0.02
	jitterMax = 0.08
)

// padder selects a target bucket size for a serialized payload and rotates
// its jitter strategy every R accepted messages, R drawn uniformly from
// [50,150] at each rotation, per spec.md §4.1.
type padder struct {
	mu         sync.Mutex
	counter    uint64
	strategyIx int
	rotateAt   uint64
}

func newPadder() *padder {
	p := &padder{}
	p.rotateAt = p.drawRotationPeriod()
	return p
}

func (p *padder) drawRotationPeriod() uint64 {
	return uint64(50 + xrand.Int63n(101)) // [50,150]
}

func (p *padder) currentStrategy() strategy {
	return strategyOrder[p.strategyIx%len(strategyOrder)]
}

// onAccepted advances the rotation counter; call once per successfully
// processed (encoded or decoded-and-accepted) message.
func (p *padder) onAccepted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	if p.counter >= p.rotateAt {
		p.counter = 0
		p.strategyIx++
		p.rotateAt = p.drawRotationPeriod()
	}
}

// targetSize returns the padded total size for a payload of length
// payloadLen, or an error if payloadLen already exceeds the largest
// bucket before any padding is applied.
func (p *padder) targetSize(payloadLen int) (int, error) {
	if payloadLen > MaxPayloadSize {
		return 0, ErrOversizeBeforePadding
	}
	base := bucketLadder[len(bucketLadder)-1]
	for _, b := range bucketLadder {
		if payloadLen <= b {
			base = b
			break
		}
	}
	j := p.jitter()
	size := int(float64(base) * (1 + j))
	if size < payloadLen {
		size = payloadLen
	}
	return size, nil
}

func (p *padder) jitter() float64 {
	p.mu.Lock()
	strat := p.currentStrategy()
	counter := p.counter
	p.mu.Unlock()

	switch strat {
	case strategyCount:
		return scaleJitter(hashUint64(counter))
	case strategyTime:
		return scaleJitter(hashUint64(uint64(time.Now().Unix() / 60)))
	case strategyCombined:
		return scaleJitter(hashUint64(counter) ^ hashUint64(uint64(time.Now().Unix()/60)))
	case strategyRandom:
		return jitterMin + xrand.NewMath().Float64()*(jitterMax-jitterMin)
	default:
		return jitterMin
	}
}

func hashUint64(v uint64) uint32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return h.Sum32()
}

// scaleJitter maps an arbitrary uint32 into [jitterMin, jitterMax].
func scaleJitter(h uint32) float64 {
	frac := float64(h%10000) / 10000.0
	return jitterMin + frac*(jitterMax-jitterMin)
}

// randomPadding returns n cryptographically random bytes, per spec.md §4.1
// ("Padding bytes are random (not zero)").
func randomPadding(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := xrand.Reader.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
