// internal/cw/table.go
// Package cw implements International Morse code table lookups, timing
// derivation, and the receiver state machine used to turn keying edges
// into characters.
package cw

import (
	"sort"
	"strings"
)

// MaxRepLen is the longest representation in the International Morse
// table; seven dot/dash elements is sufficient for every character and
// procedural sign this package knows about.
const MaxRepLen = 7

// entry is a single compile-time Morse code mapping.
type entry struct {
	char byte
	rep  string
}

// table is the canonical character-to-representation mapping. It is the
// single source of truth; the hash-indexed reverse table below is
// derived from it at init time and must always agree with it.
var table = []entry{
	{'A', ".-"}, {'B', "-..."}, {'C', "-.-."}, {'D', "-.."}, {'E', "."},
	{'F', "..-."}, {'G', "--."}, {'H', "...."}, {'I', ".."}, {'J', ".---"},
	{'K', "-.-"}, {'L', ".-.."}, {'M', "--"}, {'N', "-."}, {'O', "---"},
	{'P', ".--."}, {'Q', "--.-"}, {'R', ".-."}, {'S', "..."}, {'T', "-"},
	{'U', "..-"}, {'V', "...-"}, {'W', ".--"}, {'X', "-..-"}, {'Y', "-.--"},
	{'Z', "--.."},

	{'0', "-----"}, {'1', ".----"}, {'2', "..---"}, {'3', "...--"},
	{'4', "....-"}, {'5', "....."}, {'6', "-...."}, {'7', "--..."},
	{'8', "---.."}, {'9', "----."},

	{'.', ".-.-.-"}, {',', "--..--"}, {'?', "..--.."}, {'\'', ".----."},
	{'!', "-.-.--"}, {'/', "-..-."}, {'(', "-.--."}, {')', "-.--.-"},
	{'&', ".-..."}, {':', "---..."}, {';', "-.-.-."}, {'=', "-...-"},
	{'+', ".-.-."}, {'-', "-....-"}, {'_', "..--.-"}, {'"', ".-..-."},
	{'$', "...-..-"}, {'@', ".--.-."},
}

// phonetic is the ARRL/ITU phonetic alphabet, keyed by character.
var phonetic = map[byte]string{
	'A': "Alfa", 'B': "Bravo", 'C': "Charlie", 'D': "Delta", 'E': "Echo",
	'F': "Foxtrot", 'G': "Golf", 'H': "Hotel", 'I': "India", 'J': "Juliett",
	'K': "Kilo", 'L': "Lima", 'M': "Mike", 'N': "November", 'O': "Oscar",
	'P': "Papa", 'Q': "Quebec", 'R': "Romeo", 'S': "Sierra", 'T': "Tango",
	'U': "Uniform", 'V': "Victor", 'W': "Whiskey", 'X': "Xray", 'Y': "Yankee",
	'Z': "Zulu",
	'0': "Zero", '1': "One", '2': "Two", '3': "Three", '4': "Four",
	'5': "Five", '6': "Six", '7': "Seven", '8': "Eight", '9': "Nine",
}

// ProceduralSign describes a procedural sign's expansion and whether that
// expansion is usually spoken out in voice procedure (as opposed to the
// sign itself, e.g. "SK" is almost always sent as the character pair, not
// spoken as "end of contact").
type ProceduralSign struct {
	Expansion       string
	UsuallyExpanded bool
}

// procedural maps a procedural sign (sent as a single run-together
// representation, conventionally written with an overbar) to its meaning.
// Keys are the ASCII letters that make up the sign.
var procedural = map[string]ProceduralSign{
	"AR": {Expansion: "end of message", UsuallyExpanded: false},
	"AS": {Expansion: "wait", UsuallyExpanded: false},
	"BT": {Expansion: "break", UsuallyExpanded: false},
	"CL": {Expansion: "closing station", UsuallyExpanded: false},
	"CT": {Expansion: "start copying", UsuallyExpanded: false},
	"KA": {Expansion: "starting signal", UsuallyExpanded: false},
	"KN": {Expansion: "invite named station only", UsuallyExpanded: false},
	"SK": {Expansion: "end of contact", UsuallyExpanded: false},
	"SN": {Expansion: "understood", UsuallyExpanded: true},
	"SOS": {Expansion: "distress", UsuallyExpanded: true},
}

// forward and reverse are built once at init from table; reverse is the
// array indexed by hash (defined in this file),
// forward is the injective character->representation map used to assert
// L2 and to implement CharacterToRepresentation.
var (
	forward = make(map[byte]string, len(table))
	reverse [256]byte // indexed by hash(rep); 0 means "unused"
)

func init() {
	for _, e := range table {
		if _, dup := forward[e.char]; dup {
			panic("cw: duplicate character in Morse table: " + string(e.char))
		}
		forward[e.char] = e.rep

		h, ok := hash(e.rep)
		if !ok {
			panic("cw: representation out of hash domain: " + e.rep)
		}
		if reverse[h] != 0 {
			panic("cw: hash collision for representation: " + e.rep)
		}
		reverse[h] = e.char
	}
}

// hash computes the fast reverse-lookup hash for a representation: a
// leading sentinel 1 bit followed by one bit per element (dot=0, dash=1).
// It returns false if rep is not a well-formed representation.
func hash(rep string) (uint8, bool) {
	if !RepresentationIsValid(rep) {
		return 0, false
	}
	h := uint8(1)
	for i := 0; i < len(rep); i++ {
		h <<= 1
		if rep[i] == '-' {
			h |= 1
		}
	}
	return h, true
}

// CharacterToRepresentation returns the Morse representation for c,
// uppercasing letters first. It reports ok=false if c has no entry.
func CharacterToRepresentation(c byte) (rep string, ok bool) {
	rep, ok = forward[upper(c)]
	return rep, ok
}

// RepresentationToCharacter returns the character for rep, using the
// hash-indexed fast path. It reports ok=false if rep is malformed or has
// no entry.
func RepresentationToCharacter(rep string) (byte, bool) {
	h, ok := hash(rep)
	if !ok {
		return 0, false
	}
	c := reverse[h]
	if c == 0 {
		return 0, false
	}
	return c, true
}

// CharacterIsValid reports whether c (after uppercasing) has a Morse
// representation.
func CharacterIsValid(c byte) bool {
	_, ok := forward[upper(c)]
	return ok
}

// RepresentationIsValid reports whether rep is a well-formed
// representation: 1..MaxRepLen characters, each either '.' or '-'.
func RepresentationIsValid(rep string) bool {
	if len(rep) == 0 || len(rep) > MaxRepLen {
		return false
	}
	for i := 0; i < len(rep); i++ {
		if rep[i] != '.' && rep[i] != '-' {
			return false
		}
	}
	return true
}

// StringIsValid reports whether every character of s (after uppercasing)
// is either a valid Morse character or ASCII whitespace (word separator).
func StringIsValid(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if !CharacterIsValid(c) {
			return false
		}
	}
	return true
}

// ListCharacters returns every character in the table, sorted, as a
// single string.
func ListCharacters() string {
	chars := make([]byte, 0, len(forward))
	for c := range forward {
		chars = append(chars, c)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return string(chars)
}

// CharacterCount returns the number of characters in the table.
func CharacterCount() int {
	return len(forward)
}

// LookupProcedural returns the expansion of a procedural sign (e.g. "SK",
// "AR"), matched case-insensitively.
func LookupProcedural(sign string) (ProceduralSign, bool) {
	p, ok := procedural[strings.ToUpper(sign)]
	return p, ok
}

// LookupPhonetic returns the phonetic alphabet word for c.
func LookupPhonetic(c byte) (string, bool) {
	w, ok := phonetic[upper(c)]
	return w, ok
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
