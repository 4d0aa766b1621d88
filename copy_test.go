package imap

import (
	"reflect"
	"testing"
)

func TestCopyData_Pairs(t *testing.T) {
	src, err := ParseUIDSet("1:3")
	if err != nil {
		t.Fatalf("ParseUIDSet(src) error: %v", err)
	}
	dst, err := ParseUIDSet("10:12")
	if err != nil {
		t.Fatalf("ParseUIDSet(dst) error: %v", err)
	}
	d := &CopyData{SourceUIDs: *src, DestUIDs: *dst}

	want := []UIDPair{{Source: 1, Dest: 10}, {Source: 2, Dest: 11}, {Source: 3, Dest: 12}}
	if got := d.Pairs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs() = %v, want %v", got, want)
	}
}

func TestCopyData_PairsMismatchedCounts(t *testing.T) {
	src, _ := ParseUIDSet("1:3")
	dst, _ := ParseUIDSet("10:11")
	d := &CopyData{SourceUIDs: *src, DestUIDs: *dst}
	if got := d.Pairs(); got != nil {
		t.Errorf("Pairs() with mismatched counts = %v, want nil", got)
	}
}
