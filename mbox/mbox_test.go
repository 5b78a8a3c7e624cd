package mbox

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

//go:embed testdata/replay.mbox
var replayMbox []byte

func TestLoad(t *testing.T) {
	s, err := Load(bytes.NewReader(replayMbox), Filter{}, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	ctx := context.Background()
	ids, err := s.ListUnseen(ctx)
	if err != nil {
		t.Fatalf("ListUnseen() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("ListUnseen() = %v, want [1 2 3]", ids)
	}

	msg, err := s.Fetch(ctx, 2)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !bytes.Contains(msg.Raw, []byte("Subject: Weekly newsletter")) {
		t.Errorf("Fetch(2) returned the wrong message:\n%s", msg.Raw)
	}
	if bytes.HasPrefix(msg.Raw, []byte("From ")) {
		t.Errorf("mbox separator line leaked into message")
	}
}

func TestSession_Flags(t *testing.T) {
	s, err := Load(bytes.NewReader(replayMbox), Filter{}, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ctx := context.Background()

	if err := s.MarkSeen(ctx, 1); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if err := s.MarkUnseen(ctx, 3); err != nil {
		t.Fatalf("MarkUnseen() error = %v", err)
	}
	ids, _ := s.ListUnseen(ctx)
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("ListUnseen() = %v, want [2 3]", ids)
	}
	if !s.Seen(1) || s.Seen(3) {
		t.Errorf("Seen() out of sync with flags")
	}

	if err := s.MarkSeen(ctx, 99); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("MarkSeen(99) error = %v, want ErrUnknownMessage", err)
	}
	if _, err := s.Fetch(ctx, 99); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Fetch(99) error = %v, want ErrUnknownMessage", err)
	}
}

func TestLoad_Filter(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantIDs []uint32
		wantErr bool
	}{
		{name: "no filters", filter: Filter{}, wantIDs: []uint32{1, 2, 3}},
		{name: "include header", filter: Filter{IncludeHeader: []string{`(?m)^To: jane@`}}, wantIDs: []uint32{1, 3}},
		{name: "include body", filter: Filter{IncludeBody: []string{"Disk usage"}}, wantIDs: []uint32{3}},
		{name: "exclude header", filter: Filter{ExcludeHeader: []string{"newsletter"}}, wantIDs: []uint32{1, 3}},
		{name: "exclude body", filter: Filter{ExcludeBody: []string{"nightly"}}, wantIDs: []uint32{2, 3}},
		{name: "blank patterns ignored", filter: Filter{IncludeHeader: []string{"  "}}, wantIDs: []uint32{1, 2, 3}},
		{name: "include and exclude conflict", filter: Filter{IncludeHeader: []string{"a"}, ExcludeBody: []string{"b"}}, wantErr: true},
		{name: "bad pattern", filter: Filter{IncludeBody: []string{"("}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(bytes.NewReader(replayMbox), tt.filter, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			ids, _ := s.ListUnseen(context.Background())
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("ListUnseen() = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Fatalf("ListUnseen() = %v, want %v", ids, tt.wantIDs)
				}
			}
		})
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(Options{Path: " "}, nil); err == nil {
		t.Error("Open() with empty path should fail")
	}
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "missing.mbox")}, nil)
	if err == nil || !strings.Contains(err.Error(), "open mbox") {
		t.Errorf("Open() error = %v, want open error", err)
	}

	s, err := Open(Options{Path: filepath.Join("testdata", "replay.mbox")}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}
