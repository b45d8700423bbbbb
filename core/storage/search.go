package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/smartyellow/services/core/schema"
)

// Search builds a query matching text case-insensitively against the
// filter fields. A filter takes part only when text fits its match
// pattern. Localized filters are searched in the given languages, or in
// every locale when none are given. Empty text matches every record.
func Search(filters []schema.FilterView, text string, languages []string) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, nil
	}
	pattern := regexp.QuoteMeta(text)

	var alts []Cond
	for _, f := range filters {
		if f.Match != "" {
			re, err := regexp.Compile(f.Match)
			if err != nil {
				return Query{}, fmt.Errorf("filter %s: %w", f.Key, err)
			}
			if !re.MatchString(text) {
				continue
			}
		}
		if f.Localized && len(languages) > 0 {
			for _, lang := range languages {
				alts = append(alts, Match(f.Key+"."+lang, pattern))
			}
			continue
		}
		alts = append(alts, Match(f.Key, pattern))
	}

	if len(alts) == 0 {
		// Nothing can match; a condition on a reserved path keeps the
		// query from selecting everything.
		return Query{Where: []Cond{{Path: schema.Path{"\x00"}, Op: OpEq, Value: true}}}, nil
	}
	return Query{Any: alts}, nil
}
