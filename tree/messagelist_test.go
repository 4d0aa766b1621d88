package tree

import (
	"errors"
	"testing"

	imap "github.com/jharlan/imap-engine"

	"github.com/jharlan/imap-engine/cache"
)

func TestApplyExistsGrowsWithEmptySlots(t *testing.T) {
	ml := &MessageList{}
	if ml.Sized() {
		t.Fatal("Sized() = true before any EXISTS applied")
	}

	ml.ApplyExists(3)
	if !ml.Sized() {
		t.Fatal("Sized() = false after ApplyExists")
	}
	if ml.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ml.Len())
	}
	for seq := uint32(1); seq <= 3; seq++ {
		if msg := ml.At(seq); msg != nil {
			t.Errorf("At(%d) = %+v, want nil for a freshly sized list", seq, msg)
		}
	}
}

func TestApplyExistsShrinks(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(3)
	ml.ApplyFetch(1, &imap.FetchMessageBuffer{Flags: []imap.Flag{imap.FlagSeen}})

	ml.ApplyExists(1)
	if ml.Len() != 1 {
		t.Fatalf("Len() after shrink = %d, want 1", ml.Len())
	}
	if ml.At(1) == nil {
		t.Fatal("At(1) = nil, want the message fetched before the shrink")
	}
}

func TestApplyFetchBeforeSizedFails(t *testing.T) {
	ml := &MessageList{}
	err := ml.ApplyFetch(1, &imap.FetchMessageBuffer{})
	if !errors.Is(err, ErrNotSized) {
		t.Fatalf("ApplyFetch() error = %v, want ErrNotSized", err)
	}
}

func TestApplyFetchOutOfRange(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(2)
	err := ml.ApplyFetch(5, &imap.FetchMessageBuffer{})
	if !errors.Is(err, ErrSeqOutOfRange) {
		t.Fatalf("ApplyFetch() error = %v, want ErrSeqOutOfRange", err)
	}
}

func TestApplyFetchMarksOnlyGivenAttributes(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(1)

	if err := ml.ApplyFetch(1, &imap.FetchMessageBuffer{Flags: []imap.Flag{imap.FlagSeen}}); err != nil {
		t.Fatalf("ApplyFetch() error = %v", err)
	}
	msg := ml.At(1)
	if !msg.FetchedFlags() {
		t.Error("FetchedFlags() = false after a FLAGS-only FETCH")
	}
	if msg.FetchedEnvelope() {
		t.Error("FetchedEnvelope() = true, want false until ENVELOPE is fetched")
	}

	env := &imap.Envelope{Subject: "hello"}
	if err := ml.ApplyFetch(1, &imap.FetchMessageBuffer{Envelope: env}); err != nil {
		t.Fatalf("ApplyFetch() error = %v", err)
	}
	if !msg.FetchedEnvelope() {
		t.Error("FetchedEnvelope() = false after an ENVELOPE FETCH")
	}
	if msg.Envelope.Subject != "hello" {
		t.Errorf("Envelope.Subject = %q, want %q", msg.Envelope.Subject, "hello")
	}
}

func TestApplyFetchBuildsBodyPartTree(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(1)

	bs := &imap.BodyStructure{
		Type:    "multipart",
		Subtype: "mixed",
		Children: []imap.BodyStructure{
			{Type: "text", Subtype: "plain"},
			{Type: "application", Subtype: "octet-stream"},
		},
	}
	if err := ml.ApplyFetch(1, &imap.FetchMessageBuffer{BodyStructure: bs}); err != nil {
		t.Fatalf("ApplyFetch() error = %v", err)
	}
	msg := ml.At(1)
	if !msg.FetchedBodyStructure() {
		t.Fatal("FetchedBodyStructure() = false after a BODYSTRUCTURE FETCH")
	}
	if msg.Parts == nil || len(msg.Parts.Children) != 2 {
		t.Fatalf("Parts = %+v, want 2 children", msg.Parts)
	}
	if msg.Parts.Children[0].Path != "1" || msg.Parts.Children[1].Path != "2" {
		t.Errorf("child paths = %q, %q, want \"1\", \"2\"", msg.Parts.Children[0].Path, msg.Parts.Children[1].Path)
	}
}

func TestApplyFetchFillsBodySectionIntoPart(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(1)

	bs := &imap.BodyStructure{Type: "text", Subtype: "plain"}
	ml.ApplyFetch(1, &imap.FetchMessageBuffer{BodyStructure: bs})

	err := ml.ApplyFetch(1, &imap.FetchMessageBuffer{
		BodySection: map[string][]byte{"BODY[TEXT]": []byte("hello world")},
	})
	if err != nil {
		t.Fatalf("ApplyFetch() error = %v", err)
	}
	msg := ml.At(1)
	if !msg.Parts.Fetched() {
		t.Fatal("Parts.Fetched() = false after a matching BODY[TEXT] fetch")
	}
	if string(msg.Parts.Data) != "hello world" {
		t.Errorf("Parts.Data = %q, want %q", msg.Parts.Data, "hello world")
	}
}

func TestApplyExpungeShiftsSequenceNumbersDown(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(3)
	ml.ApplyFetch(2, &imap.FetchMessageBuffer{Flags: []imap.Flag{imap.FlagSeen}})
	ml.ApplyFetch(3, &imap.FetchMessageBuffer{Flags: []imap.Flag{imap.FlagFlagged}})

	c := cache.NewMemCache()
	c.SetNewNumbers(1, 100, 3)

	if err := ml.ApplyExpunge(1, c); err != nil {
		t.Fatalf("ApplyExpunge() error = %v", err)
	}
	if ml.Len() != 2 {
		t.Fatalf("Len() after expunge = %d, want 2", ml.Len())
	}
	if got := ml.At(1); got == nil || got.SeqNum != 1 || got.Flags[0] != imap.FlagSeen {
		t.Errorf("At(1) after expunge = %+v, want the old seq 2 message renumbered to 1", got)
	}
	if got := ml.At(2); got == nil || got.SeqNum != 2 {
		t.Errorf("At(2) after expunge = %+v, want the old seq 3 message renumbered to 2", got)
	}
	if c.Exists() != 2 {
		t.Errorf("cache Exists() after expunge = %d, want 2", c.Exists())
	}
}

func TestApplyExpungeOutOfRange(t *testing.T) {
	ml := &MessageList{}
	ml.ApplyExists(1)
	err := ml.ApplyExpunge(5, nil)
	if !errors.Is(err, ErrSeqOutOfRange) {
		t.Fatalf("ApplyExpunge() error = %v, want ErrSeqOutOfRange", err)
	}
}

func TestFetchLoadingLifecycle(t *testing.T) {
	ml := &MessageList{}
	if ml.Fetched() || ml.Loading() {
		t.Fatal("new list should be neither fetched nor loading")
	}

	ml.BeginFetch()
	if !ml.Loading() {
		t.Fatal("Loading() = false after BeginFetch")
	}
	if ml.Fetched() {
		t.Fatal("Fetched() = true while loading; the two bits are exclusive")
	}

	ml.FinishFetch()
	if ml.Loading() {
		t.Fatal("Loading() = true after FinishFetch")
	}
	if !ml.Fetched() {
		t.Fatal("Fetched() = false after FinishFetch")
	}
}
