package quotes

import (
	"github.com/shopspring/decimal"
)

// AdditionalItemsPackageName labels the synthetic package that groups ad-hoc items.
const AdditionalItemsPackageName = "Additional items"

var hundred = decimal.NewFromInt(100)

// LineInput is a priced line inside a package. For catalog packages UnitPrice is
// the resolved product/service price and Quantity the template quantity.
type LineInput struct {
	ProductID   *int64
	ServiceID   *int64
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// PackageInput is a package ready for pricing.
type PackageInput struct {
	Name        string
	TemplateID  *int64
	Quantity    int
	CustomPrice *decimal.Decimal
	Lines       []LineInput
}

// Totals is the outcome of pricing a quote.
type Totals struct {
	Subtotal         decimal.Decimal
	PackageSubtotals []decimal.Decimal
	TaxRate          decimal.Decimal
	TaxAmount        decimal.Decimal
	DiscountPercent  decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
}

// Calculator prices packages. It is pure and safe for concurrent use.
type Calculator struct {
	taxRate decimal.Decimal
}

// NewCalculator returns a calculator applying taxRate (0.21 means 21%).
func NewCalculator(taxRate decimal.Decimal) Calculator {
	return Calculator{taxRate: taxRate}
}

// TaxRate returns the configured rate.
func (c Calculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// WithTaxRate returns a copy of the calculator using another rate.
func (c Calculator) WithTaxRate(rate decimal.Decimal) Calculator {
	return Calculator{taxRate: rate}
}

// PackageFromTemplate expands a catalog template into a priced package input.
// Items without a resolvable price are kept at zero.
func PackageFromTemplate(tpl PackageTemplate, quantity int, customPrice *decimal.Decimal) PackageInput {
	id := tpl.ID
	lines := make([]LineInput, 0, len(tpl.Items))
	for _, item := range tpl.Items {
		lines = append(lines, LineInput{
			ProductID:   item.ProductID,
			ServiceID:   item.ServiceID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.ResolvedPrice(),
		})
	}
	return PackageInput{
		Name:        tpl.Name,
		TemplateID:  &id,
		Quantity:    quantity,
		CustomPrice: customPrice,
		Lines:       lines,
	}
}

// AdditionalItemsPackage groups ad-hoc items into the synthetic package.
func AdditionalItemsPackage(items []LineInput) PackageInput {
	return PackageInput{
		Name:     AdditionalItemsPackageName,
		Quantity: 1,
		Lines:    items,
	}
}

// PackageSubtotal prices a single package.
func (c Calculator) PackageSubtotal(pkg PackageInput) decimal.Decimal {
	qty := decimal.NewFromInt(int64(packageQuantity(pkg)))
	if pkg.CustomPrice != nil && pkg.CustomPrice.IsPositive() {
		return pkg.CustomPrice.Mul(qty)
	}
	sum := decimal.Zero
	for _, line := range pkg.Lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum.Mul(qty)
}

// ComputeQuoteTotals prices every package and applies tax and the client discount.
func (c Calculator) ComputeQuoteTotals(packages []PackageInput, clientDiscountPercent *decimal.Decimal) Totals {
	totals := Totals{
		PackageSubtotals: make([]decimal.Decimal, 0, len(packages)),
		TaxRate:          c.taxRate,
	}
	subtotal := decimal.Zero
	for _, pkg := range packages {
		pkgSubtotal := c.PackageSubtotal(pkg).Round(2)
		totals.PackageSubtotals = append(totals.PackageSubtotals, pkgSubtotal)
		subtotal = subtotal.Add(pkgSubtotal)
	}
	totals.Subtotal = subtotal
	totals.TaxAmount = subtotal.Mul(c.taxRate).Round(2)

	beforeDiscount := subtotal.Add(totals.TaxAmount)
	totals.Discount = decimal.Zero
	totals.DiscountPercent = decimal.Zero
	if clientDiscountPercent != nil && clientDiscountPercent.IsPositive() {
		totals.DiscountPercent = *clientDiscountPercent
		totals.Discount = beforeDiscount.Mul(*clientDiscountPercent).Div(hundred).Round(2)
	}

	totals.Total = beforeDiscount.Sub(totals.Discount)
	if totals.Total.IsNegative() {
		totals.Total = decimal.Zero
	}
	return totals
}

// BuildPackages converts priced inputs into persisted packages. Item quantities
// are multiplied by the package quantity.
func BuildPackages(inputs []PackageInput, totals Totals) []Package {
	packages := make([]Package, 0, len(inputs))
	for i, in := range inputs {
		pkgQty := packageQuantity(in)
		pkg := Package{
			PackageTemplateID: in.TemplateID,
			Name:              in.Name,
			Quantity:          pkgQty,
			CustomPrice:       in.CustomPrice,
			Position:          i + 1,
		}
		if i < len(totals.PackageSubtotals) {
			pkg.Subtotal = totals.PackageSubtotals[i]
		}
		for j, line := range in.Lines {
			qty := line.Quantity * pkgQty
			pkg.Items = append(pkg.Items, PackageItem{
				ProductID:   line.ProductID,
				ServiceID:   line.ServiceID,
				Description: line.Description,
				Quantity:    qty,
				UnitPrice:   line.UnitPrice,
				TotalPrice:  line.UnitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2),
				Position:    j + 1,
			})
		}
		packages = append(packages, pkg)
	}
	return packages
}

func packageQuantity(pkg PackageInput) int {
	if pkg.Quantity < 1 {
		return 1
	}
	return pkg.Quantity
}
