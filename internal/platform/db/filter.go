package db

import (
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike quotes the LIKE wildcards in s for use with ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// SegmentPrefix builds a clause matching column against a dotted prefix on a
// segment boundary: "HERA.FIN.GL" matches itself and "HERA.FIN.GL.ACC..." but
// not "HERA.FIN.GLX...". next is the index of the first placeholder; the
// returned args fill it and the one after.
func SegmentPrefix(column, prefix string, next int) (string, []any) {
	clause := fmt.Sprintf(`(%s = $%d OR %s LIKE $%d ESCAPE '\')`, column, next, column, next+1)
	return clause, []any{prefix, EscapeLike(prefix) + ".%"}
}
