package smartcode

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

func TestValidateAcceptsCanonicalCode(t *testing.T) {
	res := Validate("HERA.SALON.SVC.TXN.SALE.V1")
	require.True(t, res.Valid, res.Errors)
	require.NotNil(t, res.Components)
	assert.Equal(t, Components{
		Prefix:   "HERA",
		Industry: "SALON",
		Module:   "SVC",
		Type:     "TXN",
		Subtype:  "SALE",
		Version:  1,
	}, *res.Components)
	assert.Empty(t, res.Errors)
}

func TestValidateRejectsMalformedCodes(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"too few":         "HERA.SALON.SVC.TXN.V1",
		"too many":        "HERA.SALON.SVC.TXN.SALE.EXTRA.V1",
		"wrong prefix":    "ACME.SALON.SVC.TXN.SALE.V1",
		"lower segment":   "HERA.salon.SVC.TXN.SALE.V1",
		"lower version":   "HERA.SALON.SVC.TXN.SALE.v1",
		"zero version":    "HERA.SALON.SVC.TXN.SALE.V0",
		"leading zero":    "HERA.SALON.SVC.TXN.SALE.V01",
		"no digits":       "HERA.SALON.SVC.TXN.SALE.V",
		"alpha version":   "HERA.SALON.SVC.TXN.SALE.V1A",
		"empty segment":   "HERA..SVC.TXN.SALE.V1",
		"negative":        "HERA.SALON.SVC.TXN.SALE.V-1",
		"underscore lead": "HERA._SALON.SVC.TXN.SALE.V1",
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			res := Validate(code)
			assert.False(t, res.Valid)
			assert.Nil(t, res.Components)
			assert.NotEmpty(t, res.Errors)

			_, err := Parse(code)
			assert.True(t, errors.Is(err, shared.ErrMalformedCode), "got %v", err)
		})
	}
}

func TestNextVersionIncrementsOnlyVersion(t *testing.T) {
	codes := []string{
		"HERA.SALON.SVC.TXN.SALE.V1",
		"HERA.RETAIL.INV.PRODUCT.STOCK_ITEM.V9",
		"HERA.FIN.GL.ACC.ASSET.V41",
	}
	for _, code := range codes {
		next, err := NextVersion(code)
		require.NoError(t, err)
		require.True(t, Validate(next).Valid)

		before, _ := Parse(code)
		after, _ := Parse(next)
		assert.Equal(t, before.Version+1, after.Version)
		before.Version = after.Version
		assert.Equal(t, before, after)
	}
}

func TestNextVersionRejectsInvalid(t *testing.T) {
	_, err := NextVersion("HERA.SALON.SVC")
	assert.ErrorIs(t, err, shared.ErrMalformedCode)
}

func TestNextVersionRefusesToOverflow(t *testing.T) {
	top := fmt.Sprintf("HERA.A.B.C.D.V%d", math.MaxInt)
	require.True(t, Validate(top).Valid)
	next, err := NextVersion(top)
	assert.ErrorIs(t, err, shared.ErrMalformedCode)
	assert.Empty(t, next)

	below := fmt.Sprintf("HERA.A.B.C.D.V%d", math.MaxInt-1)
	next, err = NextVersion(below)
	require.NoError(t, err)
	assert.True(t, Validate(next).Valid)
}

func TestCategory(t *testing.T) {
	cat, err := Category("HERA.SALON.SVC.TXN.SALE.V3")
	require.NoError(t, err)
	assert.Equal(t, "SALON.SVC.TXN", cat)

	_, err = Category("bogus")
	assert.ErrorIs(t, err, shared.ErrMalformedCode)
}

func TestHasPrefixRespectsSegmentBoundary(t *testing.T) {
	assert.True(t, HasPrefix("HERA.SALON.SVC.TXN.SALE.V1", "HERA.SALON.SVC"))
	assert.False(t, HasPrefix("HERA.SALON.SVCX.TXN.SALE.V1", "HERA.SALON.SVC"))
	assert.True(t, HasPrefix("HERA.SALON.SVC.TXN.SALE.V1", ""))
}

func TestTemplatesAreReadOnlyCopies(t *testing.T) {
	first := Templates()
	require.NotEmpty(t, first)
	delete(first, "entity.customer")
	second := Templates()
	_, ok := second["entity.customer"]
	assert.True(t, ok)
	assert.Len(t, TemplateNames(), len(second))
}

func TestFillTemplate(t *testing.T) {
	tpl := Templates()["entity.customer"]
	assert.Equal(t, []string{"industry", "subtype"}, Placeholders(tpl.Code))

	code, err := Fill(tpl.Code, map[string]string{"industry": "salon", "subtype": "vip"})
	require.NoError(t, err)
	assert.Equal(t, "HERA.SALON.CRM.CUSTOMER.VIP.V1", code)

	_, err = Fill(tpl.Code, map[string]string{"industry": "salon"})
	assert.Error(t, err)
}
