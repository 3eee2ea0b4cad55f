package core

// Category is one entry of the fixed category catalog.
type Category struct {
	Name string `json:"name"`
	// Key is the English name; it resolves to the same entry.
	Key  string `json:"key"`
	Icon string `json:"icon"`
}

// Icon names follow the FontAwesome 4 set used by the mobile client.
var catalog = []Category{
	{Name: "Zakupy spożywcze", Key: "Groceries", Icon: "shopping-basket"},
	{Name: "Tekstylia", Key: "Textiles", Icon: "scissors"},
	{Name: "Transport/Taxi", Key: "Transport/Taxi", Icon: "taxi"},
	{Name: "Czynsz/Media", Key: "Rent/Utilities", Icon: "plug"},
	{Name: "Restauracje", Key: "Restaurants", Icon: "cutlery"},
	{Name: "Zdrowie", Key: "Health", Icon: "medkit"},
	{Name: "Rozrywka", Key: "Entertainment", Icon: "film"},
	{Name: "Edukacja", Key: "Education", Icon: "book"},
	{Name: "Inne", Key: "Other", Icon: "ellipsis-h"},
}

var catalogIndex = func() map[string]Category {
	m := make(map[string]Category, 2*len(catalog))
	for _, c := range catalog {
		m[c.Name] = c
		m[c.Key] = c
	}
	return m
}()

// Categories returns a copy of the catalog in display order.
func Categories() []Category {
	return append([]Category(nil), catalog...)
}

// LookupCategory returns the catalog entry whose Polish label or English key
// is name.
func LookupCategory(name string) (Category, bool) {
	c, ok := catalogIndex[name]
	return c, ok
}
