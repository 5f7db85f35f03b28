// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// modref's command results.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/modref/internal/metadata"
	"github.com/phobologic/modref/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeSpecifier renders a resolved module specifier.
func EncodeSpecifier(imported, importing, specifier string) string {
	return strings.Join([]string{
		field("imported", imported),
		field("importing", importing),
		field("specifier", specifier),
	}, "\n")
}

// EncodeMetadata renders the metadata known for one module: a records table
// and a symbols table covering every record.
func EncodeMetadata(file string, res *metadata.Result) string {
	parts := []string{
		field("module", file),
		field("status", res.Status()),
	}
	if res == nil {
		return strings.Join(parts, "\n")
	}

	var recordRows, symbolRows [][]string
	for _, rec := range res.Records {
		version := strconv.Itoa(rec.Version)
		recordRows = append(recordRows, []string{version, strconv.Itoa(rec.Symbols.Len())})
		for name, sym := range rec.Symbols.All() {
			symbolRows = append(symbolRows, []string{
				version,
				name,
				string(sym.Kind),
				strings.Join(sym.MemberNames(), " "),
				reference(sym.Extends),
			})
		}
	}
	parts = append(parts, formatTabular("records", []string{"version", "symbols"}, recordRows))
	parts = append(parts, formatTabular("symbols", []string{"version", "name", "kind", "members", "extends"}, symbolRows))
	return strings.Join(parts, "\n")
}

// EncodeScan renders one row per looked-up module.
func EncodeScan(root string, lookups []metadata.Lookup) string {
	var rows [][]string
	for _, l := range lookups {
		var versions []string
		if l.Result != nil {
			for _, rec := range l.Result.Records {
				versions = append(versions, strconv.Itoa(rec.Version))
			}
		}
		status := l.Result.Status()
		errText := ""
		if l.Err != nil {
			status = "error"
			errText = l.Err.Error()
		}
		rows = append(rows, []string{l.File, strings.Join(versions, " "), status, errText})
	}
	return field("root", root) + "\n" +
		formatTabular("modules", []string{"path", "versions", "status", "error"}, rows)
}

func reference(ref *model.Reference) string {
	if ref == nil {
		return ""
	}
	if ref.Module == "" {
		return ref.Name
	}
	return ref.Module + "#" + ref.Name
}

func field(key, value string) string {
	return fmt.Sprintf("%s: %s", key, encodeValue(value))
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
