package imap

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchDateLayout is the date-only format used by SEARCH date criteria
// (SINCE, BEFORE, ON, and their SENT* variants).
const SearchDateLayout = "02-Jan-2006"

// SearchCriteria represents the criteria for SEARCH commands.
type SearchCriteria struct {
	SeqNum *SeqSet
	UID    *UIDSet

	// Date-based criteria
	Since      time.Time
	Before     time.Time
	SentSince  time.Time
	SentBefore time.Time
	SentOn     time.Time
	On         time.Time

	// Header criteria
	Header []SearchCriteriaHeaderField

	// Body/text criteria
	Body []string
	Text []string

	// Size criteria
	Larger  int64
	Smaller int64

	// Flag criteria
	Flag    []Flag
	NotFlag []Flag

	// ModSeq criteria (CONDSTORE)
	ModSeq *SearchCriteriaModSeq

	// Nested criteria
	Or  [][2]SearchCriteria
	Not []SearchCriteria

	// Within extension (RFC 5032)
	Younger int64 // seconds
	Older   int64 // seconds

	// Save result (SEARCHRES, RFC 5182)
	SaveResult bool

	// Fuzzy search (RFC 6203)
	Fuzzy bool
}

// String renders the criteria as SEARCH key/argument pairs, e.g.
// `SINCE 01-Jan-2023 HEADER From "alice@example.com" NOT SEEN`. An empty
// SearchCriteria renders as "ALL".
func (sc *SearchCriteria) String() string {
	var keys []string

	if sc.SeqNum != nil {
		keys = append(keys, sc.SeqNum.String())
	}
	if sc.UID != nil {
		keys = append(keys, "UID "+sc.UID.String())
	}
	if !sc.Since.IsZero() {
		keys = append(keys, "SINCE "+sc.Since.Format(SearchDateLayout))
	}
	if !sc.Before.IsZero() {
		keys = append(keys, "BEFORE "+sc.Before.Format(SearchDateLayout))
	}
	if !sc.SentSince.IsZero() {
		keys = append(keys, "SENTSINCE "+sc.SentSince.Format(SearchDateLayout))
	}
	if !sc.SentBefore.IsZero() {
		keys = append(keys, "SENTBEFORE "+sc.SentBefore.Format(SearchDateLayout))
	}
	if !sc.SentOn.IsZero() {
		keys = append(keys, "SENTON "+sc.SentOn.Format(SearchDateLayout))
	}
	if !sc.On.IsZero() {
		keys = append(keys, "ON "+sc.On.Format(SearchDateLayout))
	}
	for _, h := range sc.Header {
		keys = append(keys, fmt.Sprintf("HEADER %s %q", h.Key, h.Value))
	}
	for _, b := range sc.Body {
		keys = append(keys, fmt.Sprintf("BODY %q", b))
	}
	for _, t := range sc.Text {
		keys = append(keys, fmt.Sprintf("TEXT %q", t))
	}
	if sc.Larger > 0 {
		keys = append(keys, "LARGER "+strconv.FormatInt(sc.Larger, 10))
	}
	if sc.Smaller > 0 {
		keys = append(keys, "SMALLER "+strconv.FormatInt(sc.Smaller, 10))
	}
	for _, f := range sc.Flag {
		keys = append(keys, searchFlagKey(f))
	}
	for _, f := range sc.NotFlag {
		keys = append(keys, "NOT "+searchFlagKey(f))
	}
	if sc.ModSeq != nil {
		if sc.ModSeq.MetadataName != "" {
			keys = append(keys, fmt.Sprintf("MODSEQ %q %s %d", sc.ModSeq.MetadataName, sc.ModSeq.MetadataType, sc.ModSeq.ModSeq))
		} else {
			keys = append(keys, fmt.Sprintf("MODSEQ %d", sc.ModSeq.ModSeq))
		}
	}
	for _, or := range sc.Or {
		keys = append(keys, fmt.Sprintf("OR (%s) (%s)", or[0].String(), or[1].String()))
	}
	for _, not := range sc.Not {
		keys = append(keys, fmt.Sprintf("NOT (%s)", not.String()))
	}
	if sc.Younger > 0 {
		keys = append(keys, fmt.Sprintf("YOUNGER %d", sc.Younger))
	}
	if sc.Older > 0 {
		keys = append(keys, fmt.Sprintf("OLDER %d", sc.Older))
	}
	if sc.SaveResult {
		keys = append(keys, "SAVE")
	}
	if sc.Fuzzy {
		keys = append(keys, "FUZZY")
	}

	if len(keys) == 0 {
		return "ALL"
	}
	return strings.Join(keys, " ")
}

func searchFlagKey(f Flag) string {
	switch f {
	case FlagSeen:
		return "SEEN"
	case FlagAnswered:
		return "ANSWERED"
	case FlagFlagged:
		return "FLAGGED"
	case FlagDeleted:
		return "DELETED"
	case FlagDraft:
		return "DRAFT"
	default:
		return "KEYWORD " + string(f)
	}
}

// SearchCriteriaHeaderField is a header field search criterion.
type SearchCriteriaHeaderField struct {
	// Key is the header field name.
	Key string
	// Value is the string to search for.
	Value string
}

// SearchCriteriaModSeq is the MODSEQ search criterion.
type SearchCriteriaModSeq struct {
	ModSeq     uint64
	MetadataName string
	MetadataType string // "shared", "priv", "all"
}

// SearchOptions specifies options for the SEARCH command.
type SearchOptions struct {
	// ReturnMin requests the MIN result.
	ReturnMin bool
	// ReturnMax requests the MAX result.
	ReturnMax bool
	// ReturnAll requests the ALL result.
	ReturnAll bool
	// ReturnCount requests the COUNT result.
	ReturnCount bool
	// ReturnSave requests the SAVE result.
	ReturnSave bool
	// ReturnPartial requests partial results (RFC 9394).
	ReturnPartial *SearchReturnPartial
}

// ReturnItems renders the RETURN option list's members, e.g. ["MIN", "COUNT"].
func (o *SearchOptions) ReturnItems() []string {
	if o == nil {
		return nil
	}
	var items []string
	if o.ReturnMin {
		items = append(items, "MIN")
	}
	if o.ReturnMax {
		items = append(items, "MAX")
	}
	if o.ReturnAll {
		items = append(items, "ALL")
	}
	if o.ReturnCount {
		items = append(items, "COUNT")
	}
	if o.ReturnSave {
		items = append(items, "SAVE")
	}
	if o.ReturnPartial != nil {
		items = append(items, fmt.Sprintf("PARTIAL %d:%d", o.ReturnPartial.Offset, o.ReturnPartial.Count))
	}
	return items
}

// SearchReturnPartial specifies partial result options.
type SearchReturnPartial struct {
	Offset int32  // negative = end-relative (RFC 9394)
	Count  uint32
}

// SearchData represents the result of a SEARCH command.
type SearchData struct {
	// AllSeqNums contains all matching sequence numbers (non-ESEARCH).
	AllSeqNums []uint32
	// AllUIDs contains all matching UIDs (non-ESEARCH).
	AllUIDs []UID

	// Tag is the client-supplied search correlator (ESEARCH TAG).
	Tag string
	// ESEARCH results
	UID    bool    // true if results are UIDs
	Min    uint32  // minimum sequence number or UID
	Max    uint32  // maximum sequence number or UID
	All    *SeqSet // all matching numbers
	Count  uint32  // count of matches
	ModSeq uint64  // highest mod-sequence for matched messages

	// Partial results
	Partial *SearchPartialData

	// Incremental carries incremental-threading/context extension
	// items such as ADDTO/REMOVEFROM (RFC 5267 CONTEXT=SORT/THREAD).
	Incremental []ESearchIncrementalItem
}

// ESearchIncrementalItem represents a single ADDTO/REMOVEFROM item
// within an ESEARCH response carrying incremental update context.
type ESearchIncrementalItem struct {
	// Op is the operation name, e.g. "ADDTO" or "REMOVEFROM".
	Op string
	// Context is the position/context marker the operation applies at.
	Context uint32
	// Nums is the set of sequence numbers or UIDs affected.
	Nums *SeqSet
}

// SearchPartialData contains partial search results.
type SearchPartialData struct {
	Offset int32  // negative = end-relative (RFC 9394)
	Total  uint32
	UIDs   []UID
}
