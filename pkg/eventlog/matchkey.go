package eventlog

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/formflow/formflow/pkg/platform"
	"github.com/formflow/formflow/pkg/symboltable"
)

// MatchKey is a best-effort correlation key recovered from a platform file,
// used to match events back to visits.
type MatchKey struct {
	PTID   string
	Date   string
	Module string
}

// Complete reports whether all three fields were recovered.
func (k MatchKey) Complete() bool {
	return k.PTID != "" && k.Date != "" && k.Module != ""
}

// legacyName matches "<ptid>-<YYYY-MM-DD>-<module>.<ext>", the naming
// convention used before visit metadata was stored structurally.
var legacyName = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2})-([A-Za-z]+)\.[A-Za-z0-9]+$`)

// MatchKeyFromFile recovers (ptid, date, module) from a file's structured
// visit metadata, falling back to filename parsing for legacy files. Old
// and new files coexist, so both paths stay live: fields found structurally
// win, and the filename only fills what is still missing.
func MatchKeyFromFile(f platform.FileInfo) MatchKey {
	key := matchKeyFromInfo(f.Info)

	if !key.Complete() {
		fallback := matchKeyFromName(f.Name)
		if key.PTID == "" {
			key.PTID = fallback.PTID
		}
		if key.Date == "" {
			key.Date = fallback.Date
		}
		if key.Module == "" {
			key.Module = fallback.Module
		}
	}

	return key
}

// matchKeyFromInfo reads the structured "visit" block of the file's custom
// metadata.
func matchKeyFromInfo(info map[string]interface{}) MatchKey {
	var key MatchKey
	if info == nil {
		return key
	}

	meta := symboltable.FromMap(info)
	key.PTID = stringAt(meta, "visit.ptid")
	key.Date = stringAt(meta, "visit.visitdate")
	key.Module = strings.ToUpper(stringAt(meta, "visit.module"))
	return key
}

// stringAt resolves a dotted metadata path to a string, treating conflicts
// the same as absence: a malformed visit block recovers nothing.
func stringAt(t *symboltable.Table, path string) string {
	value, ok, err := t.Get(path)
	if err != nil || !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// matchKeyFromName parses the legacy filename convention. Names that only
// match the shorter "<ptid>-<module>.<ext>" form recover ptid and module
// but no date.
func matchKeyFromName(name string) MatchKey {
	if m := legacyName.FindStringSubmatch(name); m != nil {
		return MatchKey{PTID: m[1], Date: m[2], Module: strings.ToUpper(m[3])}
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "-")
	if idx <= 0 || idx == len(base)-1 {
		return MatchKey{}
	}
	return MatchKey{
		PTID:   base[:idx],
		Module: strings.ToUpper(base[idx+1:]),
	}
}
