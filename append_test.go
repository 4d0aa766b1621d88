package imap

import "testing"

func TestAppendOptions_FlagList(t *testing.T) {
	if got := (&AppendOptions{}).FlagList(); got != "" {
		t.Errorf("FlagList() on empty options = %q, want \"\"", got)
	}
	o := &AppendOptions{Flags: []Flag{FlagSeen, FlagDraft}}
	if got, want := o.FlagList(), `(\Seen \Draft)`; got != want {
		t.Errorf("FlagList() = %q, want %q", got, want)
	}
}
