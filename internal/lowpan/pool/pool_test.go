package pool

import (
	"bytes"
	"errors"
	"testing"

	"firestige.xyz/lowpan/internal/core"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := New(2)
	if p.Cap() != 2 {
		t.Fatalf("Cap = %d, want 2", p.Cap())
	}

	frame := []byte{1, 2, 3, 4}
	s, err := p.Acquire(frame)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !bytes.Equal(s.Bytes(), frame) {
		t.Errorf("slot holds %x, want %x", s.Bytes(), frame)
	}
	if s.Len() != 4 {
		t.Errorf("Len = %d, want 4", s.Len())
	}
	if p.InUse() != 1 {
		t.Errorf("InUse = %d, want 1", p.InUse())
	}

	// The slot owns a copy; the source buffer is free to change.
	frame[0] = 0xFF
	if s.Bytes()[0] != 1 {
		t.Error("slot content aliased the source buffer")
	}

	p.Release(s)
	if p.InUse() != 0 {
		t.Errorf("InUse after release = %d, want 0", p.InUse())
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := New(2)

	a, err := p.Acquire([]byte{1})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := p.Acquire([]byte{2}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := p.Acquire([]byte{3}); !errors.Is(err, core.ErrPoolExhausted) {
		t.Fatalf("error = %v, want ErrPoolExhausted", err)
	}

	// A release makes the pool usable again.
	p.Release(a)
	s, err := p.Acquire([]byte{4})
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if s.Bytes()[0] != 4 {
		t.Errorf("reused slot holds %x", s.Bytes())
	}
}

func TestPoolRejectsOversizedFrame(t *testing.T) {
	p := New(1)
	big := make([]byte, 4096)
	if _, err := p.Acquire(big); !errors.Is(err, core.ErrDatagramTooLarge) {
		t.Errorf("error = %v, want ErrDatagramTooLarge", err)
	}
}

func TestPoolDefaultSlots(t *testing.T) {
	if p := New(0); p.Cap() != DefaultSlots {
		t.Errorf("Cap = %d, want %d", p.Cap(), DefaultSlots)
	}
}
