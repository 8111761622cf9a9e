package export

// Column identifies one feed column. The column id doubles as the CSV header
// value and the key into the extractor registry.
type Column string

const (
	ColID                   Column = "id"
	ColName                 Column = "name"
	ColTitle                Column = "title"
	ColDescription          Column = "description"
	ColUPC                  Column = "upc"
	ColImage                Column = "image"
	ColProductLink          Column = "product_link"
	ColCategory             Column = "category"
	ColMasterProductID      Column = "master_product_id"
	ColBrand                Column = "brand"
	ColPrice                Column = "price"
	ColBookPrice            Column = "bookprice"
	ColPromoPrice           Column = "promoprice"
	ColInventory            Column = "inventory"
	ColInStock              Column = "in_stock"
	ColAdditionalImageLinks Column = "additional_image_links"
	ColCustomFields         Column = "custom_fields"
	ColVariantAttributes    Column = "variant_attributes"
	ColProductType          Column = "product_type"
	ColManufacturerName     Column = "manufacturer_name"
	ColManufacturerSKU      Column = "manufacturer_sku"
	ColOnline               Column = "online"
	ColAllBookPrice         Column = "all_bookprice"
)

// Export types selecting a schema.
const (
	TypeCatalog   = "catalog"
	TypeInventory = "inventory"
)

// FieldSeparator joins multiple values inside one cell. It is distinct from
// the CSV delimiter.
const FieldSeparator = "|"

// PriceSentinel marks price columns with no underlying data.
const PriceSentinel = "N/A"

var catalogSchema = []Column{
	ColID,
	ColName,
	ColTitle,
	ColDescription,
	ColUPC,
	ColImage,
	ColProductLink,
	ColCategory,
	ColMasterProductID,
	ColBrand,
	ColPrice,
	ColBookPrice,
	ColPromoPrice,
	ColInventory,
	ColInStock,
	ColAdditionalImageLinks,
	ColCustomFields,
	ColVariantAttributes,
	ColProductType,
	ColManufacturerName,
	ColManufacturerSKU,
	ColOnline,
}

var inventorySchema = []Column{
	ColID,
	ColPrice,
	ColBookPrice,
	ColPromoPrice,
	ColInventory,
	ColInStock,
	ColProductType,
	ColOnline,
}

// Schema returns the ordered column list for the given export type. Unknown
// types yield an empty schema; callers treat that as "nothing to export" and
// surface it as a configuration error.
func Schema(exportType string) []Column {
	var src []Column
	switch exportType {
	case TypeCatalog:
		src = catalogSchema
	case TypeInventory:
		src = inventorySchema
	default:
		return nil
	}
	out := make([]Column, len(src))
	copy(out, src)
	return out
}

// Header renders a schema as the CSV header row.
func Header(schema []Column) []string {
	out := make([]string, len(schema))
	for i, col := range schema {
		out[i] = string(col)
	}
	return out
}
