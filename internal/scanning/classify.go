package scanning

import "strings"

type categoryKeywords struct {
	category Category
	keywords []string
}

// categoryTable is scanned top to bottom; earlier entries win when text
// hits keywords of several categories ("gas", "market").
var categoryTable = []categoryKeywords{
	{FoodAndDining, []string{"restaurant", "cafe", "coffee", "diner", "bistro", "food"}},
	{Transportation, []string{"gas", "fuel", "uber", "lyft", "taxi", "transit", "parking"}},
	{Shopping, []string{"mall", "store", "retail", "market", "shop", "boutique"}},
	{Entertainment, []string{"cinema", "movie", "theater", "concert", "show"}},
	{BillsAndUtilities, []string{"utility", "electric", "water", "gas", "internet", "phone"}},
	{Healthcare, []string{"pharmacy", "doctor", "medical", "clinic", "hospital", "drug"}},
	{Travel, []string{"hotel", "airline", "flight", "booking", "travel"}},
	{Groceries, []string{"grocery", "supermarket", "market", "foods", "wholesale"}},
}

// Classify picks the category of the first table entry with a keyword
// occurring anywhere in the merchant name or receipt text
func Classify(merchant, text string) Category {
	haystack := strings.ToLower(merchant + " " + text)

	for _, entry := range categoryTable {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.category
			}
		}
	}

	return Other
}
