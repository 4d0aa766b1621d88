package imap

// CopyData represents the result of a COPY or MOVE command.
type CopyData struct {
	// UIDValidity is the UID validity of the destination mailbox.
	UIDValidity uint32
	// SourceUIDs is the set of UIDs that were copied from the source.
	SourceUIDs UIDSet
	// DestUIDs is the set of UIDs in the destination mailbox.
	DestUIDs UIDSet
}

// UIDPair maps a single source UID to the UID it was given in the
// destination mailbox.
type UIDPair struct {
	Source UID
	Dest   UID
}

// Pairs walks SourceUIDs and DestUIDs range-by-range, pairing up
// corresponding UIDs per the COPYUID response code (RFC 4315 §3), which
// guarantees the two sets describe the same count of UIDs in the same
// order. It returns nil if the two sets don't describe matching counts.
func (d *CopyData) Pairs() []UIDPair {
	src, dst := d.SourceUIDs.Ranges(), d.DestUIDs.Ranges()
	var pairs []UIDPair
	si, di := 0, 0
	var sCur, dCur uint32
	sInRange, dInRange := false, false
	for si < len(src) && di < len(dst) {
		if !sInRange {
			sCur = src[si].Start
			sInRange = true
		}
		if !dInRange {
			dCur = dst[di].Start
			dInRange = true
		}
		pairs = append(pairs, UIDPair{Source: UID(sCur), Dest: UID(dCur)})
		if sCur >= src[si].Stop {
			si++
			sInRange = false
		} else {
			sCur++
		}
		if dCur >= dst[di].Stop {
			di++
			dInRange = false
		} else {
			dCur++
		}
	}
	if si != len(src) || di != len(dst) {
		return nil
	}
	return pairs
}
