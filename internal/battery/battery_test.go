// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package battery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	mv, err := Fixed(3700).Read()
	if err != nil || mv != 3700 {
		t.Errorf("Fixed(3700).Read() = %d, %v", mv, err)
	}
}

func TestDischarge_Curve(t *testing.T) {
	d := NewDischarge(4200, 3200, time.Hour, 0)
	base := d.start
	tests := []struct {
		elapsed time.Duration
		want    uint16
	}{
		{0, 4200},
		{30 * time.Minute, 3700},
		{time.Hour, 3200},
		{5 * time.Hour, 3200},
	}
	for _, tt := range tests {
		d.now = func() time.Time { return base.Add(tt.elapsed) }
		got, err := d.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got != tt.want {
			t.Errorf("after %v: got %d mV, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestDischarge_NoiseBounded(t *testing.T) {
	d := NewDischarge(4000, 3000, time.Hour, 10)
	base := d.start
	d.now = func() time.Time { return base }
	for i := 0; i < 200; i++ {
		got, _ := d.Read()
		if got < 3990 || got > 4010 {
			t.Fatalf("sample %d = %d, outside 4000 +/- 10", i, got)
		}
	}
}

func TestSysfs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "BAT0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "voltage_now")
	if err := os.WriteFile(path, []byte("3871000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewSysfs(root, "BAT0")
	if err != nil {
		t.Fatalf("NewSysfs: %v", err)
	}
	mv, err := s.Read()
	if err != nil || mv != 3871 {
		t.Errorf("Read() = %d, %v, want 3871", mv, err)
	}

	if err := os.WriteFile(path, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read(); !errors.Is(err, ErrNoReading) {
		t.Errorf("empty file: err = %v, want ErrNoReading", err)
	}
}

func TestSysfs_MissingSupply(t *testing.T) {
	if _, err := NewSysfs(t.TempDir(), "BAT9"); err == nil {
		t.Error("NewSysfs on missing supply succeeded")
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		source  string
		wantErr bool
	}{
		{"fixed:3700", false},
		{"fixed:abc", true},
		{"discharge", false},
		{"discharge:4200:3300:12h", false},
		{"discharge:4200:3300", true},
		{"sysfs:", true},
		{"adc:1", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, err := Open(tt.source)
			if (err != nil) != tt.wantErr {
				t.Errorf("Open(%q) error = %v, wantErr %v", tt.source, err, tt.wantErr)
			}
		})
	}

	s, _ := Open("fixed:3700")
	if mv, _ := s.Read(); mv != 3700 {
		t.Errorf("fixed:3700 reads %d", mv)
	}
}
