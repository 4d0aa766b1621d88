package imap

import (
	"strings"
	"time"
)

// Parser turns a single assembled response (already reassembled by the
// framer, literals and all) into a typed Response. It holds no state
// of its own between calls; all per-response state lives on the
// Lexer it drives.
type Parser struct{}

// NewParser returns a stateless Parser.
func NewParser() *Parser { return &Parser{} }

// ParseResponse dispatches a complete response line (without its
// trailing CRLF) to ParseTagged or ParseUntagged based on its first
// bytes.
func (p *Parser) ParseResponse(line []byte) (*Response, error) {
	if len(line) >= 2 && line[0] == '*' && line[1] == ' ' {
		return p.ParseUntagged(line[2:])
	}
	return p.ParseTagged(line)
}

// ParseTagged parses "<tag> <status> ...".
func (p *Parser) ParseTagged(line []byte) (*Response, error) {
	l := NewLexer(line)
	tag, err := l.ReadAtom()
	if err != nil {
		return nil, err
	}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	status, err := l.ReadAtom()
	if err != nil {
		return nil, err
	}
	var typ StatusResponseType
	switch strings.ToUpper(string(status)) {
	case "OK":
		typ = StatusResponseTypeOK
	case "NO":
		typ = StatusResponseTypeNO
	case "BAD":
		typ = StatusResponseTypeBAD
	default:
		return nil, NewUnknownCommandResult("tagged response status must be OK/NO/BAD, got "+string(status), line, l.Pos())
	}
	sr, err := p.parseStatusTail(l, typ)
	if err != nil {
		return nil, err
	}
	return &Response{Kind: ResponseState, Tag: string(tag), State: sr}, nil
}

// parseStatusTail parses the "[CODE ...] free text" tail common to
// both tagged and untagged status responses, having already consumed
// the leading tag/"*" and status atom.
func (p *Parser) parseStatusTail(l *Lexer, typ StatusResponseType) (*StatusResponse, error) {
	sr := &StatusResponse{Type: typ}
	if err := l.ReadSP(); err != nil {
		// Some greetings/status lines have no text at all.
		return sr, nil
	}
	if b, ok := l.PeekByte(); ok && b == '[' {
		code, arg, err := p.parseResponseCode(l)
		if err != nil {
			return nil, err
		}
		sr.Code = code
		sr.CodeArg = arg
		l.SkipSP()
	}
	sr.Text = string(l.Remaining())
	return sr, nil
}

func (p *Parser) parseResponseCode(l *Lexer) (ResponseCode, interface{}, error) {
	if err := l.ReadByte('['); err != nil {
		return "", nil, err
	}
	atom, err := l.ReadAtom()
	if err != nil {
		return "", nil, err
	}
	code := ResponseCode(strings.ToUpper(string(atom)))
	var arg interface{}
	switch code {
	case ResponseCodeUIDNext, ResponseCodeUIDValidity, ResponseCodeUnseen:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		n, err := l.ReadUint()
		if err != nil {
			return "", nil, err
		}
		arg = uint32(n)
	case ResponseCodeHighestModSeq:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		n, err := l.ReadUint()
		if err != nil {
			return "", nil, err
		}
		arg = n
	case ResponseCodeCapability:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		caps, err := p.readCapAtoms(l)
		if err != nil {
			return "", nil, err
		}
		arg = caps
	case ResponseCodePermanentFlags:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		flags, err := p.readFlagList(l)
		if err != nil {
			return "", nil, err
		}
		arg = flags
	case ResponseCodeAppendUID:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		validity, err := l.ReadUint()
		if err != nil {
			return "", nil, err
		}
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		uidsStr, err := l.ReadAtom()
		if err != nil {
			return "", nil, err
		}
		uids, err := ParseUIDSet(string(uidsStr))
		if err != nil {
			return "", nil, err
		}
		arg = AppendUIDCodeArg{UIDValidity: uint32(validity), UIDs: uids}
	case ResponseCodeCopyUID:
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		validity, err := l.ReadUint()
		if err != nil {
			return "", nil, err
		}
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		srcStr, err := l.ReadAtom()
		if err != nil {
			return "", nil, err
		}
		src, err := ParseUIDSet(string(srcStr))
		if err != nil {
			return "", nil, err
		}
		if err := l.ReadSP(); err != nil {
			return "", nil, err
		}
		dstStr, err := l.ReadAtom()
		if err != nil {
			return "", nil, err
		}
		dst, err := ParseUIDSet(string(dstStr))
		if err != nil {
			return "", nil, err
		}
		arg = CopyUIDCodeArg{UIDValidity: uint32(validity), SourceUIDs: src, DestUIDs: dst}
	default:
		// Open-ended atom fallback: capture any remaining text up
		// to the close bracket verbatim.
		if b, ok := l.PeekByte(); ok && b == ' ' {
			l.SkipSP()
			start := l.Pos()
			for {
				c, ok := l.PeekByte()
				if !ok || c == ']' {
					break
				}
				l.cur++
			}
			arg = string(l.buf[start:l.Pos()])
		}
	}
	l.SkipSP()
	if err := l.ReadByte(']'); err != nil {
		return "", nil, err
	}
	return code, arg, nil
}

// AppendUIDCodeArg is the payload of a RESP-CODE-APPENDUID response code.
type AppendUIDCodeArg struct {
	UIDValidity uint32
	UIDs        *UIDSet
}

// CopyUIDCodeArg is the payload of a RESP-CODE-COPYUID response code.
type CopyUIDCodeArg struct {
	UIDValidity uint32
	SourceUIDs  *UIDSet
	DestUIDs    *UIDSet
}

func (p *Parser) readCapAtoms(l *Lexer) ([]Cap, error) {
	var caps []Cap
	for {
		atom, err := l.ReadAtom()
		if err != nil {
			return nil, err
		}
		caps = append(caps, Cap(strings.ToUpper(string(atom))))
		if b, ok := l.PeekByte(); ok && b == ' ' {
			// Lookahead: stop before the closing ']' is reached; a
			// trailing SP followed immediately by ']' ends the list.
			save := l.Pos()
			l.SkipSP()
			if b2, ok2 := l.PeekByte(); ok2 && (b2 == ']' || b2 == 0) {
				l.cur = save
				break
			}
			continue
		}
		break
	}
	return caps, nil
}

func (p *Parser) readFlagList(l *Lexer) ([]Flag, error) {
	items, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	flags := make([]Flag, 0, len(items))
	for _, v := range items {
		flags = append(flags, Flag(string(v.Bytes)))
	}
	return flags, nil
}

// ParseUntagged parses the remainder of an untagged line after the
// leading "* " has already been stripped.
func (p *Parser) ParseUntagged(rest []byte) (*Response, error) {
	l := NewLexer(rest)
	if b, ok := l.PeekByte(); ok && b >= '0' && b <= '9' {
		n, err := l.ReadUint()
		if err != nil {
			return nil, err
		}
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		atom, err := l.ReadAtom()
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(string(atom)) {
		case "EXISTS":
			return &Response{Kind: ResponseNumber, Number: &NumberResponse{NumKind: NumberExists, Num: uint32(n)}}, nil
		case "RECENT":
			return &Response{Kind: ResponseNumber, Number: &NumberResponse{NumKind: NumberRecent, Num: uint32(n)}}, nil
		case "EXPUNGE":
			return &Response{Kind: ResponseNumber, Number: &NumberResponse{NumKind: NumberExpunge, Num: uint32(n)}}, nil
		case "FETCH":
			if err := l.ReadSP(); err != nil {
				return nil, err
			}
			fd, err := p.parseFetch(l, uint32(n))
			if err != nil {
				return nil, err
			}
			return &Response{Kind: ResponseFetch, Fetch: fd}, nil
		default:
			return nil, NewUnrecognizedResponseKind(string(atom), rest, l.Pos())
		}
	}

	atom, err := l.ReadAtom()
	if err != nil {
		return nil, err
	}
	kind := strings.ToUpper(string(atom))
	switch kind {
	case "OK", "NO", "BAD", "PREAUTH", "BYE":
		var typ StatusResponseType
		switch kind {
		case "OK":
			typ = StatusResponseTypeOK
		case "NO":
			typ = StatusResponseTypeNO
		case "BAD":
			typ = StatusResponseTypeBAD
		case "PREAUTH":
			typ = StatusResponseTypePREAUTH
		case "BYE":
			typ = StatusResponseTypeBYE
		}
		sr, err := p.parseStatusTail(l, typ)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseState, State: sr}, nil
	case "CAPABILITY":
		l.SkipSP()
		caps, err := p.readCapAtoms(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseCapabilityKind, Capability: caps}, nil
	case "ENABLED":
		l.SkipSP()
		caps, err := p.readCapAtoms(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseEnabled, Enabled: caps}, nil
	case "FLAGS":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		flags, err := p.readFlagList(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseFlagsKind, Flags: flags}, nil
	case "LIST", "LSUB":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		ld, err := p.parseList(l)
		if err != nil {
			return nil, err
		}
		rk := ResponseList
		if kind == "LSUB" {
			rk = ResponseLSub
		}
		return &Response{Kind: rk, List: ld}, nil
	case "STATUS":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		sd, err := p.parseStatus(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseStatusKind, Status: sd}, nil
	case "NAMESPACE":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		nd, err := p.parseNamespace(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseNamespaceKind, Namespace: nd}, nil
	case "SEARCH":
		l.SkipSP()
		nums, err := p.readNumberList(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseSearch, Search: nums}, nil
	case "ESEARCH":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		sd, err := p.parseESearch(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseESearch, ESearch: sd}, nil
	case "SORT":
		l.SkipSP()
		nums, err := p.readNumberList(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseSort, Sort: &SortData{AllNums: nums}}, nil
	case "THREAD":
		l.SkipSP()
		threads, err := p.parseThread(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseThreadKind, Thread: &ThreadData{Threads: threads}}, nil
	case "ID":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		id, err := p.parseID(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseID, ID: id}, nil
	case "VANISHED":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		vd, err := p.parseVanished(l)
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseVanished, Vanished: vd}, nil
	case "GENURLAUTH":
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		s, err := l.ReadAString()
		if err != nil {
			return nil, err
		}
		return &Response{Kind: ResponseGenURLAuth, GenURLAuth: string(s)}, nil
	default:
		return nil, NewUnrecognizedResponseKind(kind, rest, l.Pos())
	}
}

func (p *Parser) readNumberList(l *Lexer) ([]uint32, error) {
	var nums []uint32
	for l.Pos() < l.Len() {
		n, err := l.ReadUint()
		if err != nil {
			return nil, err
		}
		nums = append(nums, uint32(n))
		if b, ok := l.PeekByte(); ok && b == ' ' {
			l.SkipSP()
			continue
		}
		break
	}
	return nums, nil
}

func (p *Parser) parseList(l *Lexer) (*ListData, error) {
	attrItems, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	attrs := make([]MailboxAttr, 0, len(attrItems))
	for _, v := range attrItems {
		attrs = append(attrs, MailboxAttr(string(v.Bytes)))
	}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	ld := &ListData{Attrs: attrs}
	ns, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	if !ns.Null && len(ns.Bytes) == 1 {
		ld.Delim = rune(ns.Bytes[0])
	}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	mbox, err := l.ReadMailbox()
	if err != nil {
		return nil, err
	}
	ld.Mailbox = mbox
	l.SkipSP()
	if b, ok := l.PeekByte(); ok && b == '(' {
		ext, err := l.ReadList()
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(ext); i += 2 {
			key := strings.ToUpper(ext[i].String())
			switch key {
			case "CHILDINFO":
				for _, c := range ext[i+1].List {
					ld.ChildInfo = append(ld.ChildInfo, c.String())
				}
			case "OLDNAME":
				if len(ext[i+1].List) > 0 {
					ld.OldName = ext[i+1].List[0].String()
				}
			}
		}
	}
	return ld, nil
}

func (p *Parser) parseStatus(l *Lexer) (*StatusData, error) {
	mbox, err := l.ReadMailbox()
	if err != nil {
		return nil, err
	}
	sd := &StatusData{Mailbox: mbox}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	items, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(items); i += 2 {
		key := strings.ToUpper(items[i].String())
		n := uint32(items[i+1].Num)
		switch key {
		case "MESSAGES":
			sd.NumMessages = &n
		case "RECENT":
			sd.NumRecent = &n
		case "UIDNEXT":
			sd.UIDNext = &n
		case "UIDVALIDITY":
			sd.UIDValidity = &n
		case "UNSEEN":
			sd.NumUnseen = &n
		case "DELETED":
			sd.NumDeleted = &n
		case "HIGHESTMODSEQ":
			m := items[i+1].Num
			sd.HighestModSeq = &m
		case "MAILBOXID":
			sd.MailboxID = items[i+1].String()
		case "SIZE":
			sz := int64(items[i+1].Num)
			sd.Size = &sz
		case "APPENDLIMIT":
			sd.AppendLimit = &n
		}
	}
	return sd, nil
}

func (p *Parser) parseNamespace(l *Lexer) (*NamespaceData, error) {
	readGroup := func() ([]NamespaceDescriptor, error) {
		if l.looksLikeNil() {
			l.cur += 3
			return nil, nil
		}
		items, err := l.ReadList()
		if err != nil {
			return nil, err
		}
		var descs []NamespaceDescriptor
		for _, it := range items {
			if len(it.List) < 2 {
				continue
			}
			d := NamespaceDescriptor{Prefix: it.List[0].String()}
			if it.List[1].Kind != ValueNil && len(it.List[1].Bytes) == 1 {
				d.Delim = rune(it.List[1].Bytes[0])
			}
			descs = append(descs, d)
		}
		return descs, nil
	}
	nd := &NamespaceData{}
	var err error
	if nd.Personal, err = readGroup(); err != nil {
		return nil, err
	}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	if nd.Other, err = readGroup(); err != nil {
		return nil, err
	}
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	if nd.Shared, err = readGroup(); err != nil {
		return nil, err
	}
	return nd, nil
}

func (p *Parser) parseESearch(l *Lexer) (*SearchData, error) {
	sd := &SearchData{}
	if b, ok := l.PeekByte(); ok && b == '(' {
		items, err := l.ReadList()
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(items); i += 2 {
			if strings.EqualFold(items[i].String(), "TAG") {
				sd.Tag = items[i+1].String()
			}
		}
		l.SkipSP()
	}
	for l.Pos() < l.Len() {
		atom, err := l.ReadAtom()
		if err != nil {
			return nil, err
		}
		word := strings.ToUpper(string(atom))
		if word == "UID" {
			sd.UID = true
			l.SkipSP()
			continue
		}
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		switch word {
		case "MIN":
			n, err := l.ReadUint()
			if err != nil {
				return nil, err
			}
			sd.Min = uint32(n)
		case "MAX":
			n, err := l.ReadUint()
			if err != nil {
				return nil, err
			}
			sd.Max = uint32(n)
		case "COUNT":
			n, err := l.ReadUint()
			if err != nil {
				return nil, err
			}
			sd.Count = uint32(n)
		case "MODSEQ":
			n, err := l.ReadUint()
			if err != nil {
				return nil, err
			}
			sd.ModSeq = n
		case "ALL":
			atom, err := l.ReadAtom()
			if err != nil {
				return nil, err
			}
			set, err := ParseSeqSet(string(atom))
			if err != nil {
				return nil, err
			}
			sd.All = set
		case "ADDTO", "REMOVEFROM":
			items, err := l.ReadList()
			if err != nil {
				return nil, err
			}
			if len(items) < 2 {
				return nil, NewNoData("ADDTO/REMOVEFROM requires context and set", l.buf, l.Pos())
			}
			// A set such as 2731:2733 lexes as the number 2731 followed
			// by the atom ":2733"; join the pieces back into one string.
			var setStr strings.Builder
			for _, it := range items[1:] {
				setStr.WriteString(it.String())
			}
			set, err := ParseSeqSet(setStr.String())
			if err != nil {
				return nil, err
			}
			sd.Incremental = append(sd.Incremental, ESearchIncrementalItem{
				Op:      word,
				Context: uint32(items[0].Num),
				Nums:    set,
			})
		default:
			// Unrecognized ESEARCH item: skip its value atom per the
			// open-ended-fallback rule and continue.
			l.ReadAtom()
		}
		l.SkipSP()
	}
	return sd, nil
}

func (p *Parser) parseThread(l *Lexer) ([]Thread, error) {
	var threads []Thread
	for {
		l.SkipSP()
		b, ok := l.PeekByte()
		if !ok || b != '(' {
			break
		}
		items, err := l.ReadList()
		if err != nil {
			return nil, err
		}
		threads = append(threads, threadFromValues(items))
	}
	return threads, nil
}

// threadFromValues converts one parenthesized thread into the Thread
// shape: a run of numbers forms a parent-child chain, and each nested
// list is a whole sub-thread branching from the current node. A thread
// whose first element is itself a list has no real root message (the
// server grouped siblings under a missing parent); it becomes a node
// with Num zero holding the branches.
func threadFromValues(items []*Value) Thread {
	if len(items) == 0 {
		return Thread{}
	}
	if items[0].Kind == ValueList {
		root := Thread{}
		for _, it := range items {
			if it.Kind == ValueList {
				root.Children = append(root.Children, threadFromValues(it.List))
			}
		}
		return root
	}
	root := Thread{Num: uint32(items[0].Num)}
	cur := &root
	for _, it := range items[1:] {
		if it.Kind == ValueList {
			cur.Children = append(cur.Children, threadFromValues(it.List))
			continue
		}
		cur.Children = append(cur.Children, Thread{Num: uint32(it.Num)})
		cur = &cur.Children[len(cur.Children)-1]
	}
	return root
}

func (p *Parser) parseID(l *Lexer) (IDData, error) {
	if l.looksLikeNil() {
		l.cur += 3
		return nil, nil
	}
	items, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	data := IDData{}
	for i := 0; i+1 < len(items); i += 2 {
		key := strings.ToLower(items[i].String())
		if items[i+1].Kind == ValueNil {
			data[key] = nil
		} else {
			v := items[i+1].String()
			data[key] = &v
		}
	}
	return data, nil
}

func (p *Parser) parseVanished(l *Lexer) (*VanishedData, error) {
	vd := &VanishedData{}
	if b, ok := l.PeekByte(); ok && b == '(' {
		if err := l.ReadByte('('); err != nil {
			return nil, err
		}
		atom, err := l.ReadAtom()
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(string(atom), "EARLIER") {
			vd.Earlier = true
		}
		if err := l.ReadByte(')'); err != nil {
			return nil, err
		}
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
	}
	atom, err := l.ReadAtom()
	if err != nil {
		return nil, err
	}
	set, err := ParseUIDSet(string(atom))
	if err != nil {
		return nil, err
	}
	vd.UIDs = set
	return vd, nil
}

// --- FETCH ---

func (p *Parser) parseFetch(l *Lexer, seq uint32) (*FetchMessageBuffer, error) {
	fd := &FetchMessageBuffer{SeqNum: seq}
	if err := l.ReadByte('('); err != nil {
		return nil, err
	}
	first := true
	for {
		l.SkipSP()
		if b, ok := l.PeekByte(); ok && b == ')' {
			l.cur++
			break
		}
		if !first {
			// already skipped separating SP above
		}
		first = false
		key, err := readFetchItemKey(l)
		if err != nil {
			return nil, err
		}
		if err := l.ReadSP(); err != nil {
			return nil, err
		}
		if err := p.parseFetchAttr(l, fd, key); err != nil {
			return nil, err
		}
	}
	return fd, nil
}

// readFetchItemKey reads a FETCH item name, including any BODY[section]
// or <partial> suffix, e.g. "BODY[TEXT]" or "BODY[1.2.HEADER]<0.100>".
// Plain l.ReadAtom alone would stop at the '[' section's closing ']',
// since ']' terminates an atom.
func readFetchItemKey(l *Lexer) (string, error) {
	nameStart := l.cur
	for l.cur < l.Len() && isAtomChar(l.buf[l.cur]) && l.buf[l.cur] != '[' {
		l.cur++
	}
	if l.cur == nameStart {
		return "", l.err("expected atom")
	}
	full := append([]byte{}, l.buf[nameStart:l.cur]...)
	for {
		c, ok := l.PeekByte()
		if !ok || (c != '[' && c != '<') {
			break
		}
		closeB := byte(']')
		if c == '<' {
			closeB = '>'
		}
		start := l.cur
		l.cur++
		for l.cur < l.Len() && l.buf[l.cur] != closeB {
			l.cur++
		}
		if l.cur >= l.Len() {
			return "", l.err("unterminated section/partial suffix")
		}
		l.cur++
		full = append(full, l.buf[start:l.cur]...)
	}
	return string(full), nil
}

func (p *Parser) parseFetchAttr(l *Lexer, fd *FetchMessageBuffer, rawKey string) error {
	upper := strings.ToUpper(rawKey)
	switch {
	case upper == "UID":
		n, err := l.ReadUint()
		if err != nil {
			return err
		}
		fd.UID = UID(n)
	case upper == "RFC822.SIZE":
		n, err := l.ReadUint()
		if err != nil {
			return err
		}
		fd.RFC822Size = int64(n)
	case upper == "FLAGS":
		flags, err := p.readFlagList(l)
		if err != nil {
			return err
		}
		fd.Flags = flags
	case upper == "MODSEQ":
		items, err := l.ReadList()
		if err != nil {
			return err
		}
		if len(items) != 1 {
			return NewInvalidResponseCode("MODSEQ", "expected singleton list", l.buf, l.Pos())
		}
		fd.ModSeq = items[0].Num
	case upper == "INTERNALDATE":
		raw, err := l.ReadQuoted()
		if err != nil {
			return err
		}
		t, err := ParseInternalDate(string(raw))
		if err != nil {
			return err
		}
		fd.InternalDate = t
	case upper == "SAVEDATE":
		ns, err := l.ReadNString()
		if err != nil {
			return err
		}
		if !ns.Null {
			t, err := ParseInternalDate(string(ns.Bytes))
			if err != nil {
				return err
			}
			fd.SaveDate = &t
		}
	case upper == "ENVELOPE":
		env, err := p.parseEnvelope(l)
		if err != nil {
			return err
		}
		fd.Envelope = env
	case upper == "BODYSTRUCTURE" || upper == "BODY":
		bs, err := p.parseBodyStructure(l)
		if err != nil {
			return err
		}
		fd.BodyStructure = bs
	case upper == "EMAILID" || upper == "X-GM-MSGID":
		ns, err := l.ReadNString()
		if err != nil {
			return err
		}
		if !ns.Null {
			fd.EmailID = string(ns.Bytes)
		}
	case upper == "THREADID" || upper == "X-GM-THRID":
		ns, err := l.ReadNString()
		if err != nil {
			return err
		}
		if !ns.Null {
			fd.ThreadID = string(ns.Bytes)
		}
	case strings.HasPrefix(upper, "BODY[") || strings.HasPrefix(upper, "BODY.PEEK[") ||
		upper == "RFC822" || upper == "RFC822.HEADER" || upper == "RFC822.TEXT":
		ns, err := l.ReadNString()
		if err != nil {
			return err
		}
		if fd.BodySection == nil {
			fd.BodySection = map[string][]byte{}
		}
		fd.BodySection[rawKey] = ns.Bytes
	case strings.HasPrefix(upper, "BINARY[") || strings.HasPrefix(upper, "BINARY.PEEK["):
		ns, err := l.ReadNString()
		if err != nil {
			return err
		}
		if fd.BinarySection == nil {
			fd.BinarySection = map[string][]byte{}
		}
		fd.BinarySection[rawKey] = ns.Bytes
	case strings.HasPrefix(upper, "BINARY.SIZE["):
		n, err := l.ReadUint()
		if err != nil {
			return err
		}
		if fd.BinarySizeSection == nil {
			fd.BinarySizeSection = map[string]uint32{}
		}
		fd.BinarySizeSection[rawKey] = uint32(n)
	default:
		// Unknown FETCH item: consume one read_anything value so the
		// remainder of the list stays in sync, then drop it.
		if _, err := l.ReadAnything(); err != nil {
			return err
		}
	}
	return nil
}

// ParseInternalDate parses an IMAP date-time of the form
// "d-MMM-yyyy HH:mm:ss +hhmm" (the day may be one or two digits) and
// returns the equivalent UTC instant.
func ParseInternalDate(s string) (time.Time, error) {
	layouts := []string{"2-Jan-2006 15:04:05 -0700", "02-Jan-2006 15:04:05 -0700"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, NewParseError("invalid INTERNALDATE: "+lastErr.Error(), []byte(s), 0)
}

func (p *Parser) parseEnvelope(l *Lexer) (*Envelope, error) {
	items, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	if len(items) != 10 {
		return nil, NewNoData("ENVELOPE requires 10 elements", l.buf, l.Pos())
	}
	env := &Envelope{}
	if items[0].Kind != ValueNil {
		if t, err := parseRFC2822Date(items[0].String()); err == nil {
			env.Date = t
		}
	}
	if items[1].Kind != ValueNil {
		env.Subject = items[1].String()
	}
	env.From = parseAddressList(items[2])
	env.Sender = parseAddressList(items[3])
	env.ReplyTo = parseAddressList(items[4])
	env.To = parseAddressList(items[5])
	env.Cc = parseAddressList(items[6])
	env.Bcc = parseAddressList(items[7])
	if items[8].Kind != ValueNil {
		env.InReplyTo = items[8].String()
	}
	if items[9].Kind != ValueNil {
		env.MessageID = items[9].String()
	}
	return env, nil
}

// parseRFC2822Date is a minimal best-effort parse of the envelope
// date string. Full RFC 2822 date parsing is an explicit leaf-utility
// non-goal; this only needs to handle the common server-emitted
// formats well enough for round-tripping through time.Time.
func parseRFC2822Date(s string) (time.Time, error) {
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func parseAddressList(v *Value) []*Address {
	if v.Kind == ValueNil {
		return nil
	}
	var addrs []*Address
	for _, item := range v.List {
		if len(item.List) != 4 {
			continue
		}
		a := &Address{}
		if item.List[0].Kind != ValueNil {
			a.Name = item.List[0].String()
		}
		if item.List[1].Kind != ValueNil {
			a.ADL = item.List[1].String()
		}
		if item.List[2].Kind != ValueNil {
			a.Mailbox = item.List[2].String()
		}
		if item.List[3].Kind != ValueNil {
			a.Host = item.List[3].String()
		}
		addrs = append(addrs, a)
	}
	return addrs
}

// parseBodyStructure recursively parses the BODY/BODYSTRUCTURE tree.
// A leading list element means multipart, a leading string means a
// one-part body whose extra fields depend on its media type.
func (p *Parser) parseBodyStructure(l *Lexer) (*BodyStructure, error) {
	if err := l.ReadByte('('); err != nil {
		return nil, err
	}
	bs, err := p.parseBodyStructureBody(l)
	if err != nil {
		return nil, err
	}
	if err := l.ReadByte(')'); err != nil {
		return nil, err
	}
	return bs, nil
}

func (p *Parser) parseBodyStructureBody(l *Lexer) (*BodyStructure, error) {
	if b, ok := l.PeekByte(); ok && b == '(' {
		return p.parseMultipart(l)
	}
	return p.parseOnePart(l)
}

func (p *Parser) parseMultipart(l *Lexer) (*BodyStructure, error) {
	bs := &BodyStructure{Type: "multipart"}
	for {
		if err := l.ReadByte('('); err != nil {
			return nil, err
		}
		child, err := p.parseBodyStructureBody(l)
		if err != nil {
			return nil, err
		}
		if err := l.ReadByte(')'); err != nil {
			return nil, err
		}
		bs.Children = append(bs.Children, *child)
		l.SkipSP()
		if b, ok := l.PeekByte(); !ok || b != '(' {
			break
		}
	}
	subtype, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Subtype = string(subtype.Bytes)
	l.SkipSP()
	if b, ok := l.PeekByte(); ok && b == '(' {
		params, err := p.parseParamList(l)
		if err != nil {
			return nil, err
		}
		bs.Params = params
		l.SkipSP()
	}
	p.parseBodyExtension(l, bs)
	return bs, nil
}

func (p *Parser) parseOnePart(l *Lexer) (*BodyStructure, error) {
	bs := &BodyStructure{}
	typ, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Type = string(typ.Bytes)
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	subtype, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Subtype = string(subtype.Bytes)
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	params, err := p.parseParamList(l)
	if err != nil {
		return nil, err
	}
	bs.Params = params
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	id, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.ID = string(id.Bytes)
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	desc, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Description = string(desc.Bytes)
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	enc, err := l.ReadNString()
	if err != nil {
		return nil, err
	}
	bs.Encoding = string(enc.Bytes)
	if err := l.ReadSP(); err != nil {
		return nil, err
	}
	size, err := l.ReadUint()
	if err != nil {
		return nil, err
	}
	bs.Size = uint32(size)

	lowerType := strings.ToLower(bs.Type)
	lowerFull := lowerType + "/" + strings.ToLower(bs.Subtype)
	if lowerFull == "message/rfc822" {
		l.SkipSP()
		env, err := p.parseEnvelope(l)
		if err != nil {
			return nil, err
		}
		bs.Envelope = env
		l.SkipSP()
		nested, err := p.parseBodyStructure(l)
		if err != nil {
			return nil, err
		}
		bs.BodyStructure = nested
		l.SkipSP()
		lines, err := l.ReadUint()
		if err != nil {
			return nil, err
		}
		bs.Lines = uint32(lines)
	} else if lowerType == "text" {
		l.SkipSP()
		lines, err := l.ReadUint()
		if err != nil {
			return nil, err
		}
		bs.Lines = uint32(lines)
	}

	l.SkipSP()
	p.parseBodyExtension(l, bs)
	return bs, nil
}

// parseBodyExtension consumes the trailing optional md5/disposition/
// language/location/extension fields shared by BODYSTRUCTURE leaves
// and multiparts. All are optional and NIL-terminated; parsing stops
// at the first one that's absent or at the closing paren.
func (p *Parser) parseBodyExtension(l *Lexer, bs *BodyStructure) {
	if b, ok := l.PeekByte(); !ok || b == ')' {
		return
	}
	if v, err := l.ReadNString(); err == nil {
		bs.MD5 = string(v.Bytes)
	} else {
		return
	}
	l.SkipSP()
	if b, ok := l.PeekByte(); !ok || b == ')' {
		return
	}
	if b, ok := l.PeekByte(); ok && b == '(' {
		items, err := l.ReadList()
		if err == nil && len(items) >= 1 {
			bs.Disposition = items[0].String()
			if len(items) >= 2 {
				bs.DispositionParams = paramListFromValues(items[1].List)
			}
		}
	} else {
		l.ReadNString()
	}
	l.SkipSP()
	if b, ok := l.PeekByte(); !ok || b == ')' {
		return
	}
	if b, ok := l.PeekByte(); ok && b == '(' {
		items, err := l.ReadList()
		if err == nil {
			for _, it := range items {
				bs.Language = append(bs.Language, it.String())
			}
		}
	} else {
		l.ReadNString()
	}
	l.SkipSP()
	if b, ok := l.PeekByte(); !ok || b == ')' {
		return
	}
	if v, err := l.ReadNString(); err == nil {
		bs.Location = string(v.Bytes)
	}
	l.SkipSP()
	// Any further extension data is unspecified free-form; skip
	// remaining values up to the close paren.
	for {
		if b, ok := l.PeekByte(); !ok || b == ')' {
			return
		}
		if _, err := l.ReadAnything(); err != nil {
			return
		}
		l.SkipSP()
	}
}

func (p *Parser) parseParamList(l *Lexer) (map[string]string, error) {
	if l.looksLikeNil() {
		l.cur += 3
		return nil, nil
	}
	items, err := l.ReadList()
	if err != nil {
		return nil, err
	}
	return paramListFromValues(items), nil
}

func paramListFromValues(items []*Value) map[string]string {
	if len(items) == 0 {
		return nil
	}
	params := make(map[string]string, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		params[items[i].String()] = items[i+1].String()
	}
	return params
}
