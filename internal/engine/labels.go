package engine

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Headers returns display labels for the result columns. Schema fields are
// title-cased ("state" -> "State"); pivot product columns keep their name.
func (res *Result) Headers() []string {
	caser := cases.Title(language.English)
	out := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		if _, ok := ParseField(c); ok && (res.Operation != OpPivot || i == 0) {
			out[i] = caser.String(c)
		} else {
			out[i] = c
		}
	}
	return out
}
