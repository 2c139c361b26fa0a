package blob

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/mkrupp/homecase-filevault/internal/domain"
)

// maxNameLength keeps "<uuid>-<name>" below the common 255 byte limit.
const maxNameLength = 200

//nolint:gochecknoglobals
var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	dotRuns         = regexp.MustCompile(`\.{2,}`)

	windowsDeviceNames = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// SanitizeName turns a user supplied filename into a single safe path
// component:
//   - unicode is NFKD decomposed and non-ASCII runes dropped ("café" -> "cafe")
//   - path separators and whitespace become "_"
//   - everything outside [A-Za-z0-9_.-] is removed, dot runs are collapsed
//   - leading and trailing "." and "_" are trimmed
//   - Windows device names get a "_" prefix
//
// Returns ErrInvalidName if nothing is left.
func SanitizeName(raw string) (string, error) {
	var sb strings.Builder

	for _, r := range norm.NFKD.String(raw) {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			sb.WriteRune(' ')
		case r > unicode.MaxASCII || unicode.IsControl(r):
			// dropped
		default:
			sb.WriteRune(r)
		}
	}

	name := strings.Join(strings.Fields(sb.String()), "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = dotRuns.ReplaceAllString(name, ".")
	name = strings.Trim(name, "._")

	if name == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidName, raw)
	}

	if base, _, _ := strings.Cut(name, "."); isWindowsDeviceName(base) {
		name = "_" + name
	}

	if len(name) > maxNameLength {
		ext := path.Ext(name)
		if len(ext) > maxNameLength/2 {
			ext = ""
		}

		name = strings.TrimRight(name[:maxNameLength-len(ext)], "._") + ext
	}

	return name, nil
}

func isWindowsDeviceName(base string) bool {
	_, ok := windowsDeviceNames[strings.ToUpper(base)]

	return ok
}
