package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dhcgn/mailcord/config"
	"github.com/dhcgn/mailcord/mbox"
	"github.com/dhcgn/mailcord/model"
)

type recordingSender struct {
	users  []string
	embeds []model.Embed
}

func (s *recordingSender) Send(_ context.Context, userID string, embed model.Embed) error {
	s.users = append(s.users, userID)
	s.embeds = append(s.embeds, embed)
	return nil
}

var testArchive = filepath.Join("..", "mbox", "testdata", "replay.mbox")

func TestReplay(t *testing.T) {
	cfg := config.Config{
		MaintainerID:   "100",
		CatchAllUserID: "100",
		UserMap:        map[string]string{"jane@example.com": "1"},
	}
	sender := &recordingSender{}

	session, err := Replay(context.Background(), cfg, mbox.Options{Path: testArchive}, sender, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	// The third archived message has no Date header and is skipped.
	if len(sender.embeds) != 2 {
		t.Fatalf("sent %d embeds, want 2", len(sender.embeds))
	}
	if sender.users[0] != "1" || sender.users[1] != "100" {
		t.Errorf("users = %v, want [1 100]", sender.users)
	}

	build := sender.embeds[0]
	if build.Title != "Build finished" {
		t.Errorf("title = %q", build.Title)
	}
	if !strings.Contains(build.Description, "Logs ( [Link to: ci.example.com](https://ci.example.com/builds/1) )") {
		t.Errorf("description = %q", build.Description)
	}
	if !strings.Contains(build.Fields[len(build.Fields)-1].Value, "<@100>") {
		t.Errorf("note field = %+v", build.Fields[len(build.Fields)-1])
	}

	news := sender.embeds[1].Description
	for _, want := range []string{"# This week", "[issue one](https://www.example.org/issue/1)", "( [Link to: bar.com](https://bar.com) )"} {
		if !strings.Contains(news, want) {
			t.Errorf("newsletter description %q missing %q", news, want)
		}
	}

	if !session.Seen(1) || !session.Seen(2) || session.Seen(3) {
		t.Errorf("seen flags = %v %v %v, want true true false", session.Seen(1), session.Seen(2), session.Seen(3))
	}
}

func TestReplay_Filtered(t *testing.T) {
	cfg := config.Config{MaintainerID: "100", CatchAllUserID: "100"}
	sender := &recordingSender{}
	opts := mbox.Options{Path: testArchive, Filter: mbox.Filter{IncludeHeader: []string{"Subject: Build"}}}

	if _, err := Replay(context.Background(), cfg, opts, sender, nil); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(sender.embeds) != 1 || sender.embeds[0].Title != "Build finished" {
		t.Errorf("embeds = %+v, want only the build message", sender.embeds)
	}
}

func TestReplay_MissingArchive(t *testing.T) {
	_, err := Replay(context.Background(), config.Config{}, mbox.Options{Path: filepath.Join(t.TempDir(), "none.mbox")}, &recordingSender{}, nil)
	if err == nil {
		t.Fatal("Replay() error = nil, want open error")
	}
}

func TestNewBridge(t *testing.T) {
	cfg := config.Config{MaintainerID: "7", CatchAllUserID: "8"}
	b := NewBridge(cfg, &recordingSender{}, nil)
	if b.Composer.MaintainerID != "7" {
		t.Errorf("MaintainerID = %q, want 7", b.Composer.MaintainerID)
	}
	if b.Reconciler == nil {
		t.Error("Reconciler is nil")
	}
}
