package quotes

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeQuoteTotalsClientDiscount(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	pkg := PackageInput{Name: "Premium", Quantity: 1, CustomPrice: decPtr("1000"), Lines: []LineInput{
		{Quantity: 1, UnitPrice: dec("400")},
	}}

	totals := calc.ComputeQuoteTotals([]PackageInput{pkg}, decPtr("10"))

	assert.True(t, totals.Subtotal.Equal(dec("1000")), totals.Subtotal.String())
	assert.True(t, totals.TaxAmount.Equal(dec("210")), totals.TaxAmount.String())
	assert.True(t, totals.Discount.Equal(dec("121")), totals.Discount.String())
	assert.True(t, totals.Total.Equal(dec("1089")), totals.Total.String())
	assert.True(t, totals.DiscountPercent.Equal(dec("10")))
}

func TestPackageSubtotalCustomPriceIgnoresCatalog(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	cases := []struct {
		name     string
		custom   string
		quantity int
		want     string
	}{
		{name: "single", custom: "1000", quantity: 1, want: "1000"},
		{name: "multiplied by quantity", custom: "250.50", quantity: 3, want: "751.5"},
		{name: "quantity below one clamps", custom: "80", quantity: 0, want: "80"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkg := PackageInput{Quantity: tc.quantity, CustomPrice: decPtr(tc.custom), Lines: []LineInput{
				{Quantity: 5, UnitPrice: dec("9999")},
			}}
			got := calc.PackageSubtotal(pkg)
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestPackageSubtotalZeroCustomPriceFallsBackToCatalog(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	pkg := PackageInput{Quantity: 2, CustomPrice: decPtr("0"), Lines: []LineInput{
		{Quantity: 2, UnitPrice: dec("100")},
	}}
	assert.True(t, calc.PackageSubtotal(pkg).Equal(dec("400")))
}

func TestPackageFromTemplateResolvesPrices(t *testing.T) {
	repo := seedRepo()
	tpl := repo.templates[templateCatalog]

	pkg := PackageFromTemplate(tpl, 2, nil)
	require.Len(t, pkg.Lines, 3)
	assert.True(t, pkg.Lines[0].UnitPrice.Equal(dec("100")))
	assert.True(t, pkg.Lines[1].UnitPrice.Equal(dec("50")))
	assert.True(t, pkg.Lines[2].UnitPrice.IsZero(), "missing prices resolve to zero")

	// (100*2 + 50*1 + 0*3) * 2
	calc := NewCalculator(dec("0.21"))
	assert.True(t, calc.PackageSubtotal(pkg).Equal(dec("500")))
}

func TestTemplateItemPrefersProductPrice(t *testing.T) {
	item := TemplateItem{ProductPrice: decPtr("12"), ServicePrice: decPtr("30")}
	assert.True(t, item.ResolvedPrice().Equal(dec("12")))

	item = TemplateItem{ServicePrice: decPtr("30")}
	assert.True(t, item.ResolvedPrice().Equal(dec("30")))

	assert.True(t, TemplateItem{}.ResolvedPrice().IsZero())
}

func TestAdditionalItemsPackage(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	pkg := AdditionalItemsPackage([]LineInput{
		{Description: "Flowers", Quantity: 3, UnitPrice: dec("12.50")},
		{Description: "Transport", Quantity: 1, UnitPrice: dec("40")},
	})
	assert.Equal(t, AdditionalItemsPackageName, pkg.Name)
	assert.Nil(t, pkg.TemplateID)
	assert.True(t, calc.PackageSubtotal(pkg).Equal(dec("77.5")))
}

func TestComputeQuoteTotalsNeverNegative(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	subtotals := []string{"0", "0.01", "19.99", "100", "1234.56", "99999.99"}
	discounts := []string{"0", "5", "12.5", "50", "99.99", "100"}

	for _, sub := range subtotals {
		for _, pct := range discounts {
			pkg := PackageInput{Quantity: 1, Lines: []LineInput{{Quantity: 1, UnitPrice: dec(sub)}}}
			totals := calc.ComputeQuoteTotals([]PackageInput{pkg}, decPtr(pct))

			expected := totals.Subtotal.Add(totals.TaxAmount).Sub(totals.Discount)
			if expected.IsNegative() {
				expected = decimal.Zero
			}
			assert.True(t, totals.Total.Equal(expected), "subtotal %s discount %s%%", sub, pct)
			assert.False(t, totals.Total.IsNegative())
			assert.True(t, totals.TaxAmount.Equal(totals.Subtotal.Mul(dec("0.21")).Round(2)))
		}
	}
}

func TestComputeQuoteTotalsFullDiscount(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	pkg := PackageInput{Quantity: 1, Lines: []LineInput{{Quantity: 1, UnitPrice: dec("100")}}}
	totals := calc.ComputeQuoteTotals([]PackageInput{pkg}, decPtr("100"))
	assert.True(t, totals.Total.IsZero())
	assert.True(t, totals.Discount.Equal(dec("121")))
}

func TestComputeQuoteTotalsWithoutDiscount(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	pkgs := []PackageInput{
		{Quantity: 1, CustomPrice: decPtr("200")},
		AdditionalItemsPackage([]LineInput{{Quantity: 2, UnitPrice: dec("50")}}),
	}
	totals := calc.ComputeQuoteTotals(pkgs, nil)
	require.Len(t, totals.PackageSubtotals, 2)
	assert.True(t, totals.Subtotal.Equal(dec("300")))
	assert.True(t, totals.TaxAmount.Equal(dec("63")))
	assert.True(t, totals.Discount.IsZero())
	assert.True(t, totals.Total.Equal(dec("363")))
}

func TestWithTaxRate(t *testing.T) {
	calc := NewCalculator(dec("0.21")).WithTaxRate(dec("0.07"))
	pkg := PackageInput{Quantity: 1, CustomPrice: decPtr("100")}
	totals := calc.ComputeQuoteTotals([]PackageInput{pkg}, nil)
	assert.True(t, totals.TaxAmount.Equal(dec("7")))
	assert.True(t, calc.TaxRate().Equal(dec("0.07")))
}

func TestBuildPackagesMultipliesItemQuantities(t *testing.T) {
	calc := NewCalculator(dec("0.21"))
	inputs := []PackageInput{{
		Name:     "Basic",
		Quantity: 3,
		Lines: []LineInput{
			{Description: "Chairs", Quantity: 2, UnitPrice: dec("10")},
			{Description: "Tables", Quantity: 1, UnitPrice: dec("25")},
		},
	}}
	totals := calc.ComputeQuoteTotals(inputs, nil)
	packages := BuildPackages(inputs, totals)

	require.Len(t, packages, 1)
	pkg := packages[0]
	assert.Equal(t, 1, pkg.Position)
	assert.Equal(t, 3, pkg.Quantity)
	assert.True(t, pkg.Subtotal.Equal(dec("135")))
	require.Len(t, pkg.Items, 2)
	assert.Equal(t, 6, pkg.Items[0].Quantity)
	assert.True(t, pkg.Items[0].TotalPrice.Equal(dec("60")))
	assert.Equal(t, 3, pkg.Items[1].Quantity)
	assert.True(t, pkg.Items[1].TotalPrice.Equal(dec("75")))
	assert.Equal(t, 2, pkg.Items[1].Position)
}
