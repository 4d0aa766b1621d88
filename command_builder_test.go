package imap

import (
	"bytes"
	"testing"
)

func TestStrPicksCheapestEncoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want PartKind
	}{
		{"bare atom", "INBOX", PartAtom},
		{"space forces quoting", "My Drafts", PartQuotedString},
		{"empty forces quoting", "", PartQuotedString},
		{"quote char forces quoting", `say"hi`, PartQuotedString},
		{"CR forces literal", "a\rb", PartLiteral},
		{"LF forces literal", "a\nb", PartLiteral},
		{"NUL forces literal", "a\x00b", PartLiteral},
		{"8-bit forces literal", "héllo", PartLiteral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand("a1", "X").Str(tt.in).Build()
			if len(cmd.Parts) != 1 {
				t.Fatalf("len(Parts) = %d, want 1", len(cmd.Parts))
			}
			if cmd.Parts[0].Kind != tt.want {
				t.Errorf("Str(%q) kind = %v, want %v", tt.in, cmd.Parts[0].Kind, tt.want)
			}
		})
	}
}

func TestRenderQuotedEscapes(t *testing.T) {
	cmd := NewCommand("a1", "LOGIN").Str(`pa"ss\word`).Build()
	got := cmd.Render()
	want := "a1 LOGIN \"pa\\\"ss\\\\word\"\r\n"
	if string(got) != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderLiteralHeader(t *testing.T) {
	cmd := NewCommand("a1", "APPEND").Mailbox("INBOX").LiteralNonSync([]byte("hello")).Build()
	got := cmd.Render()
	want := "a1 APPEND INBOX {5+}\r\nhello\r\n"
	if string(got) != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderBinaryLiteral(t *testing.T) {
	cmd := NewCommand("a1", "APPEND").Mailbox("INBOX").Binary([]byte{0, 1, 2}, true).Build()
	got := cmd.Render()
	if !bytes.HasPrefix(got, []byte("a1 APPEND INBOX ~{3+}\r\n")) {
		t.Errorf("Render() = %q, want a ~{3+} LITERAL8 header", got)
	}
}

func TestRenderIdleAndStartTLSMarkersTakeNoArgument(t *testing.T) {
	if got := NewCommand("a1", "IDLE").Idle().Build().Render(); string(got) != "a1 IDLE\r\n" {
		t.Errorf("IDLE Render() = %q, want %q", got, "a1 IDLE\r\n")
	}
	if got := NewCommand("a2", "STARTTLS").StartTLS().Build().Render(); string(got) != "a2 STARTTLS\r\n" {
		t.Errorf("STARTTLS Render() = %q, want %q", got, "a2 STARTTLS\r\n")
	}
}

// TestCommandRoundTripsThroughLexer re-reads a rendered command with
// the same lexer the response parser uses and checks each part comes
// back with its original bytes, the non-synchronizing literal
// included.
func TestCommandRoundTripsThroughLexer(t *testing.T) {
	cmd := NewCommand("a7", "APPEND").
		Mailbox("INBOX").
		Str("My Drafts").
		LiteralNonSync([]byte("From: x\r\n\r\nbody")).
		Build()

	rendered := cmd.Render()
	l := NewLexer(bytes.TrimSuffix(rendered, []byte("\r\n")))

	tag, err := l.ReadAtom()
	if err != nil || string(tag) != "a7" {
		t.Fatalf("tag = %q, err %v, want a7", tag, err)
	}
	if err := l.ReadSP(); err != nil {
		t.Fatal(err)
	}
	name, err := l.ReadAtom()
	if err != nil || string(name) != "APPEND" {
		t.Fatalf("name = %q, err %v, want APPEND", name, err)
	}

	for i, part := range cmd.Parts {
		if err := l.ReadSP(); err != nil {
			t.Fatalf("part %d: missing separator: %v", i, err)
		}
		v, err := l.ReadAnything()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if !bytes.Equal(v.Bytes, part.Data) {
			t.Errorf("part %d = %q, want %q", i, v.Bytes, part.Data)
		}
	}
	if !l.AtEnd() {
		t.Errorf("trailing bytes after final part: %q", l.Remaining())
	}
}
