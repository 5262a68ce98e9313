package ratelimit

import "testing"

func TestAllowRespectsBurst(t *testing.T) {
	l := New(1, 2)
	if !l.Allow() {
		t.Fatal("first frame should be allowed")
	}
	if !l.Allow() {
		t.Fatal("second frame should be allowed within burst")
	}
	if l.Allow() {
		t.Fatal("third frame should exceed burst of 2")
	}
}
