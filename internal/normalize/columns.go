package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold canonicalises header and sheet text for comparison: Unicode case folding,
// underscores read as spaces, runs of whitespace collapsed.
func Fold(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Field identifies a canonical column.
type Field int

const (
	FieldRoyaltyDate Field = iota
	FieldOrderDate
	FieldTitle
	FieldAuthor
	FieldASIN
	FieldISBN
	FieldMarketplace
	FieldRoyaltyType
	FieldTransactionType
	FieldNetUnitsSold
	FieldUnitsSold
	FieldUnitsRefunded
	FieldListPrice
	FieldOfferPrice
	FieldDeliveryOrManufacturingCost
	FieldFileSize
	FieldDeliveryCost
	FieldManufacturingCost
	FieldPrintingCost
	FieldExpandedDistributionCost
	FieldRoyalty
	FieldCurrency
	FieldKENPRead
	FieldPaidUnits
	FieldFreeUnits
)

// ColumnSpec says how a field is found in a header row. Exact names must equal the
// folded header; partial names only need to be contained in it.
type ColumnSpec struct {
	Field   Field
	Exact   []string
	Partial []string
}

// Columns maps fields to header positions for one sheet.
type Columns map[Field]int

// Has reports whether the sheet carries the field.
func (c Columns) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// ResolveColumns matches specs against a header row. Exact matches are claimed first
// for every spec; partial matches then pick among the headers still unclaimed, in spec
// order, so "Royalty" never steals "Royalty Date".
func ResolveColumns(header []string, specs []ColumnSpec) Columns {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = Fold(h)
	}

	cols := Columns{}
	claimed := make([]bool, len(header))

	for _, spec := range specs {
		for _, name := range spec.Exact {
			if i := indexOf(folded, claimed, func(h string) bool { return h == name }); i >= 0 {
				cols[spec.Field] = i
				claimed[i] = true
				break
			}
		}
	}

	for _, spec := range specs {
		if cols.Has(spec.Field) {
			continue
		}
		for _, name := range spec.Partial {
			if i := indexOf(folded, claimed, func(h string) bool { return strings.Contains(h, name) }); i >= 0 {
				cols[spec.Field] = i
				claimed[i] = true
				break
			}
		}
	}
	return cols
}

func indexOf(headers []string, claimed []bool, match func(string) bool) int {
	for i, h := range headers {
		if !claimed[i] && h != "" && match(h) {
			return i
		}
	}
	return -1
}
