// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gpio

import "testing"

func TestNop_TracksLevel(t *testing.T) {
	var pin Nop
	if pin.Level() {
		t.Fatal("new Nop starts high")
	}
	pin.High()
	pin.High()
	pin.Low()
	if pin.Level() {
		t.Error("Level() = high after Low()")
	}
	if got := pin.Edges(); got != 2 {
		t.Errorf("Edges() = %d, want 2", got)
	}
}

func TestOpen_NoneIsNop(t *testing.T) {
	for _, name := range []string{"", "none"} {
		pin, err := Open(name)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		if _, ok := pin.(*Nop); !ok {
			t.Errorf("Open(%q) = %T, want *Nop", name, pin)
		}
	}
}
