package ftpclient

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// EntryType is the kind of a directory listing entry.
type EntryType int

const (
	EntryUnknown EntryType = iota
	EntryFile
	EntryDir
	EntryLink
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntryLink:
		return "link"
	default:
		return "unknown"
	}
}

// Entry is one line of a LIST response.
type Entry struct {
	Name string
	Type EntryType
	Size int64

	// Target is the destination of a symbolic link
	Target string

	// Raw is the line as received
	Raw string
}

// ParseListing splits the output of ListDir into entries. It understands
// Unix ls-style lines (with or without a group column, symbolic or octal
// permissions), DOS/IIS lines and EPLF. Lines in an unknown format are
// returned with Type EntryUnknown and the whole line as Name; blank lines
// and "total N" headers are skipped.
func ParseListing(data []byte) []Entry {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), len(data)+1)
	for sc.Scan() {
		if e, ok := parseListLine(sc.Text()); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseListLine(raw string) (Entry, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "total ") {
		return Entry{}, false
	}

	e := Entry{Raw: raw}
	switch {
	case line[0] == '+' && parseEPLF(&e, line[1:]):
	case parseDOS(&e, strings.Fields(line)):
	case parseUnix(&e, strings.Fields(line)):
	default:
		e = Entry{Raw: raw, Name: line}
	}
	return e, true
}

// parseEPLF handles "+facts<TAB or space>name", e.g.
// "+i8388621.48594,m825718503,r,s280,\tdjb.html".
func parseEPLF(e *Entry, line string) bool {
	i := strings.IndexAny(line, "\t ")
	if i < 0 {
		return false
	}
	name := strings.TrimSpace(line[i+1:])
	if name == "" {
		return false
	}

	e.Name = name
	e.Type = EntryFile
	for _, fact := range strings.Split(line[:i], ",") {
		switch {
		case fact == "/":
			e.Type = EntryDir
		case strings.HasPrefix(fact, "s"):
			if n, err := strconv.ParseInt(fact[1:], 10, 64); err == nil {
				e.Size = n
			}
		}
	}
	return true
}

// parseDOS handles "MM-DD-YY HH:MMAM <DIR>|size name".
func parseDOS(e *Entry, f []string) bool {
	if len(f) < 4 || !isDOSDate(f[0]) {
		return false
	}
	if f[2] == "<DIR>" {
		e.Type = EntryDir
	} else {
		n, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return false
		}
		e.Type = EntryFile
		e.Size = n
	}
	e.Name = strings.Join(f[3:], " ")
	return true
}

// isDOSDate accepts MM-DD-YY, MM/DD/YY and their four-digit-year forms.
func isDOSDate(s string) bool {
	sep := "-"
	if strings.Contains(s, "/") {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return false
	}
	for i, p := range parts {
		switch {
		case i < 2 && (len(p) < 1 || len(p) > 2):
			return false
		case i == 2 && len(p) != 2 && len(p) != 4:
			return false
		}
		if _, err := strconv.Atoi(p); err != nil || strings.ContainsAny(p, "+-") {
			return false
		}
	}
	return true
}

// parseUnix handles
//
//	perms links owner group size month day time|year name
//	perms links owner size month day time|year name
//
// where perms is symbolic (drwxr-xr-x) or octal (755).
func parseUnix(e *Entry, f []string) bool {
	if len(f) < 8 {
		return false
	}

	switch perms := f[0]; {
	case isOctal(perms):
		e.Type = EntryFile
	case strings.ContainsRune("-dlbcps", rune(perms[0])):
		switch perms[0] {
		case 'd':
			e.Type = EntryDir
		case 'l':
			e.Type = EntryLink
		default:
			e.Type = EntryFile
		}
	default:
		return false
	}

	// Prefer the layout with a group column; fall back to the one without.
	sizeIdx := -1
	if len(f) >= 9 && isUint(f[4]) {
		sizeIdx = 4
	} else if isUint(f[3]) {
		sizeIdx = 3
	}
	if sizeIdx < 0 {
		return false
	}
	e.Size, _ = strconv.ParseInt(f[sizeIdx], 10, 64)

	name := strings.Join(f[sizeIdx+4:], " ")
	if e.Type == EntryLink {
		if before, after, ok := strings.Cut(name, " -> "); ok {
			name, e.Target = before, after
		}
	}
	e.Name = name
	return name != ""
}

func isOctal(s string) bool {
	if len(s) < 3 || len(s) > 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '7' {
			return false
		}
	}
	return true
}

func isUint(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
