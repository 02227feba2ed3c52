package ticket

// defaultCategoryMap translates classifier categories to the ServiceNow
// category vocabulary when no override is configured.
var defaultCategoryMap = map[string]string{
	"IT":         "Software",
	"HR":         "Human Resources",
	"Finance":    "Finance",
	"Facilities": "Facilities",
	"General":    "General",
}

// MapCategory translates a classifier category into a ServiceNow category
// value: the configured override table wins, then the builtin table, then
// "General".
func MapCategory(overrides map[string]string, category string) string {
	if mapped, ok := overrides[category]; ok {
		return mapped
	}
	if mapped, ok := defaultCategoryMap[category]; ok {
		return mapped
	}
	return "General"
}
