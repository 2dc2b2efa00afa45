package core

// FieldType represents the expected data type for a source column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldID             // integer identifier, "123.0" accepted
	FieldDate
	FieldNumeric
)

// FieldSpec describes one column of the source export.
type FieldSpec struct {
	Name     string    // Column header as it appears in the export
	Type     FieldType // Expected data type
	Required bool      // Column must exist in the header
	PII      bool      // Never carried past the reader
}

// HeaderIndex maps column names (lowercase, trimmed) to their position in a row.
type HeaderIndex map[string]int

// Source column keys, as found in a HeaderIndex.
const (
	ColOrderID       = "order_id"
	ColOrderDate     = "order_date"
	ColStatus        = "status"
	ColItemID        = "item_id"
	ColSKU           = "sku"
	ColQuantity      = "qty_ordered"
	ColPrice         = "price"
	ColValue         = "value"
	ColDiscount      = "discount_amount"
	ColTotal         = "total"
	ColCategory      = "category"
	ColPaymentMethod = "payment_method"
	ColCustomerID    = "cust_id"
	ColFirstName     = "first name"
	ColLastName      = "last name"
	ColGender        = "gender"
	ColAge           = "age"
	ColEmail         = "e mail"
	ColCustomerSince = "customer since"
	ColPhone         = "phone no."
	ColPlaceName     = "place name"
	ColCounty        = "county"
	ColCity          = "city"
	ColState         = "state"
	ColZip           = "zip"
	ColRegion        = "region"
)

// SourceColumns is the column contract of the sales export.
var SourceColumns = []FieldSpec{
	{Name: "order_id", Type: FieldText, Required: true},
	{Name: "order_date", Type: FieldDate, Required: true},
	{Name: "status", Type: FieldText, Required: true},
	{Name: "item_id", Type: FieldID, Required: true},
	{Name: "sku", Type: FieldText, Required: true},
	{Name: "qty_ordered", Type: FieldNumeric, Required: true},
	{Name: "price", Type: FieldNumeric, Required: true},
	{Name: "value", Type: FieldNumeric, Required: true},
	{Name: "discount_amount", Type: FieldNumeric, Required: true},
	{Name: "total", Type: FieldNumeric, Required: true},
	{Name: "category", Type: FieldText, Required: true},
	{Name: "payment_method", Type: FieldText, Required: true},
	{Name: "bi_st", Type: FieldText, PII: true},
	{Name: "cust_id", Type: FieldID, Required: true},
	{Name: "year", Type: FieldNumeric},
	{Name: "month", Type: FieldText},
	{Name: "ref_num", Type: FieldText, PII: true},
	{Name: "Name Prefix", Type: FieldText, PII: true},
	{Name: "First Name", Type: FieldText},
	{Name: "Middle Initial", Type: FieldText, PII: true},
	{Name: "Last Name", Type: FieldText},
	{Name: "Gender", Type: FieldText},
	{Name: "age", Type: FieldNumeric},
	{Name: "full_name", Type: FieldText, PII: true},
	{Name: "E Mail", Type: FieldText},
	{Name: "Customer Since", Type: FieldDate},
	{Name: "SSN", Type: FieldText, PII: true},
	{Name: "Phone No.", Type: FieldText},
	{Name: "Place Name", Type: FieldText},
	{Name: "County", Type: FieldText},
	{Name: "City", Type: FieldText},
	{Name: "State", Type: FieldText},
	{Name: "Zip", Type: FieldText},
	{Name: "Region", Type: FieldText},
	{Name: "User Name", Type: FieldText, PII: true},
	{Name: "Discount_Percent", Type: FieldNumeric, PII: true},
}

// RequiredColumns returns the header keys of every required source column.
func RequiredColumns() []string {
	var cols []string
	for _, spec := range SourceColumns {
		if spec.Required {
			cols = append(cols, headerKey(spec.Name))
		}
	}
	return cols
}

// Table is a raw, text-only tabular file held in memory.
// Every row has exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
	Lines  []int // 1-based source line of each row; nil for synthesized tables

	Bytes        int64 // raw bytes read from the source
	InvalidBytes int64 // invalid UTF-8 bytes replaced while reading

	idx HeaderIndex
}

// NewTable builds a table over header and rows. Rows are not copied.
func NewTable(header []string, rows [][]string) *Table {
	return &Table{Header: header, Rows: rows, idx: MakeHeaderIndex(header)}
}

// Index returns the table's header index.
func (t *Table) Index() HeaderIndex {
	if t.idx == nil {
		t.idx = MakeHeaderIndex(t.Header)
	}
	return t.idx
}

// Has reports whether the table has a column with the given key.
func (t *Table) Has(col string) bool {
	_, ok := t.Index()[headerKey(col)]
	return ok
}

// Value returns the cell at row i for column col, or "" when the column is absent.
func (t *Table) Value(i int, col string) string {
	pos, ok := t.Index()[headerKey(col)]
	if !ok || pos >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][pos]
}

// Line returns the source line of row i, or i+2 when lines were not tracked.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }
