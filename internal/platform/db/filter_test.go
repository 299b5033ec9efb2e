package db

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// likeMatch evaluates a LIKE pattern using '\' as the escape character.
func likeMatch(t *testing.T, pattern, value string) bool {
	t.Helper()
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '\\':
			i++
			require.Less(t, i, len(pattern), "dangling escape in %q", pattern)
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		case '%':
			b.WriteString("(?s:.*)")
		case '_':
			b.WriteString("(?s:.)")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String()).MatchString(value)
}

func TestSegmentPrefixClause(t *testing.T) {
	clause, args := SegmentPrefix("t.smart_code", "HERA.FIN.GL", 4)
	assert.Equal(t, `(t.smart_code = $4 OR t.smart_code LIKE $5 ESCAPE '\')`, clause)
	assert.Equal(t, []any{"HERA.FIN.GL", `HERA.FIN.GL.%`}, args)
}

func TestSegmentPrefixMatchesLikeHasPrefix(t *testing.T) {
	cases := []struct {
		prefix string
		code   string
	}{
		{"HERA.FIN.GL", "HERA.FIN.GL.ACC.ASSET.V1"},
		{"HERA.FIN.GL", "HERA.FIN.GLX.ACC.ASSET.V1"},
		{"HERA.FIN.GL", "HERA.FIN.GL"},
		{"HERA.RETAIL.INV.STOCK_ITEM", "HERA.RETAIL.INV.STOCK_ITEM.QTY.V1"},
		{"HERA.RETAIL.INV.STOCK_ITEM", "HERA.RETAIL.INV.STOCKXITEM.QTY.V1"},
		{"HERA.SALON%", "HERA.SALON.SVC.TXN.SALE.V1"},
	}
	for _, tc := range cases {
		_, args := SegmentPrefix("smart_code", tc.prefix, 1)
		equal := args[0].(string) == tc.code
		like := likeMatch(t, args[1].(string), tc.code)
		assert.Equal(t, smartcode.HasPrefix(tc.code, tc.prefix), equal || like, "%s vs %s", tc.prefix, tc.code)
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `A\_B\%C\\D`, EscapeLike(`A_B%C\D`))
}
