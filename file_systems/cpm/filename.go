package cpm

import (
	"fmt"
	"strings"

	"github.com/cpmtools/altairdisk/errors"
)

// invalidFilenameChars can't appear in a CP/M filename. The CP/M manual also
// bans '.' and '=', but '.' is handled separately and '=' is accepted by CCP
// in practice.
const invalidFilenameChars = "<>,;:?*[]%|()/\\"

// maxFilenameLength is the length of "NAMENAME.TYP".
const maxFilenameLength = nameLength + 1 + typeLength

func isValidFilenameChar(ch byte) bool {
	return ch >= 0x20 && ch < 0x7F && strings.IndexByte(invalidFilenameChars, ch) < 0
}

// ValidateFilename turns an arbitrary host filename into a CP/M "NAME.TYP"
// filename. Invalid characters are dropped and everything is uppercased. Only
// the first dot separates the name and type; later dots are ignored. A name
// longer than 8 characters is cut off at 8 and the type taken from whatever
// follows the next dot, truncated to 3 characters.
//
// It fails with [errors.EINVAL] if nothing usable is left of the name.
func ValidateFilename(filename string) (string, error) {
	var out strings.Builder
	foundDot := false
	charCount := 0
	typeCount := 0

	for i := 0; i < len(filename); i++ {
		ch := filename[i]
		if !isValidFilenameChar(ch) {
			continue
		}
		if ch == '.' {
			if foundDot {
				continue
			}
			foundDot = true
		}

		out.WriteByte(upperASCII(ch))
		charCount++

		// The name is full but no dot yet. Add one and skip ahead to the next
		// dot in the input, where the type will be taken from.
		if charCount == nameLength && !foundDot && i+1 < len(filename) {
			out.WriteByte('.')
			charCount++
			foundDot = true
			for i < len(filename) && filename[i] != '.' {
				i++
			}
		}
		if charCount == maxFilenameLength {
			break
		}
		if foundDot {
			if typeCount == typeLength {
				break
			}
			typeCount++
		}
	}

	validated := strings.TrimSuffix(out.String(), ".")
	if validated == "" || validated[0] == '.' {
		return "", errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("%q can't be made into a CP/M filename", filename))
	}
	return validated, nil
}

// MatchFilename compares a filename pattern against a "NAME.TYP" filename,
// ignoring case. "NAME." and "NAME" are equal.
//
// If `wildcards` is true, "?" in the pattern matches any one character and "*"
// matches the rest of the name or type it appears in. A "*" in the name part
// of a pattern with no dot matches every type as well, so "A*" matches
// "ASM.COM". Anything after the first "*" in a part is ignored, so "A*B*"
// behaves as "A*".
func MatchFilename(pattern, filename string, wildcards bool) bool {
	patternName, patternType, patternHasDot := strings.Cut(strings.ToUpper(pattern), ".")
	fileName, fileType, _ := strings.Cut(strings.ToUpper(filename), ".")

	matched, sawStar := matchFilenamePart(patternName, fileName, wildcards)
	if !matched {
		return false
	}
	if sawStar && !patternHasDot {
		return true
	}

	matched, _ = matchFilenamePart(patternType, fileType, wildcards)
	return matched
}

func matchFilenamePart(pattern, part string, wildcards bool) (matched bool, sawStar bool) {
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		if wildcards && ch == '*' {
			return true, true
		}
		if i >= len(part) {
			return false, false
		}
		if wildcards && ch == '?' {
			continue
		}
		if ch != part[i] {
			return false, false
		}
	}
	return len(pattern) == len(part), false
}

// HasWildcards returns true if `pattern` contains "*" or "?".
func HasWildcards(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

func upperASCII(ch byte) byte {
	if ch >= 'a' && ch <= 'z' {
		return ch - 'a' + 'A'
	}
	return ch
}
