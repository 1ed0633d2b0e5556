package gateway

import (
	"strconv"
	"strings"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

// parseSelector parses one restricted PromQL vector selector —
// `metric_name{label="value", label!="value", label=~"regex",
// label!~"regex"}`, name and/or brace body each optional but not both
// absent — into LabelMatchers, grounded on
// original_source/src/ingestors/http/simple_promql.rs's own
// deliberately restricted subset (no aggregations, no range vectors,
// no arithmetic; just a selector).
func parseSelector(sel string) ([]storage.LabelMatcher, error) {
	sel = strings.TrimSpace(sel)
	name := sel
	body := ""
	if i := strings.IndexByte(sel, '{'); i >= 0 {
		if !strings.HasSuffix(sel, "}") {
			return nil, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: selector %q is missing a closing brace", sel)
		}
		name = strings.TrimSpace(sel[:i])
		body = sel[i+1 : len(sel)-1]
	}

	var matchers []storage.LabelMatcher
	if name != "" {
		matchers = append(matchers, storage.LabelMatcher{Name: "__name__", Value: name, Kind: storage.Equal})
	}

	for _, clause := range splitMatcherClauses(body) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m, err := parseMatcherClause(clause)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	if len(matchers) == 0 {
		return nil, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: selector %q has no metric name or label matchers", sel)
	}
	return matchers, nil
}

func splitMatcherClauses(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var clauses []string
	depth := 0
	inQuote := false
	start := 0
	for i, r := range body {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
			// inside a quoted value, commas don't split clauses
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			clauses = append(clauses, body[start:i])
			start = i + 1
		}
	}
	clauses = append(clauses, body[start:])
	return clauses
}

// matcherOps is ordered longest-operator-first so "!=" isn't
// mis-split by a naive search for "=".
var matcherOps = []struct {
	op   string
	kind storage.MatcherKind
}{
	{"!~", storage.RegexNotMatch},
	{"=~", storage.RegexMatch},
	{"!=", storage.NotEqual},
	{"=", storage.Equal},
}

func parseMatcherClause(clause string) (storage.LabelMatcher, error) {
	for _, cand := range matcherOps {
		idx := strings.Index(clause, cand.op)
		if idx < 0 {
			continue
		}
		label := strings.TrimSpace(clause[:idx])
		rawValue := strings.TrimSpace(clause[idx+len(cand.op):])
		value, err := strconv.Unquote(rawValue)
		if err != nil {
			return storage.LabelMatcher{}, datamodel.WrapError(datamodel.InvalidDataFormat, err,
				"gateway: selector clause %q has an unquoted or malformed value", clause)
		}
		if label == "" {
			return storage.LabelMatcher{}, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: selector clause %q is missing a label name", clause)
		}
		return storage.LabelMatcher{Name: label, Value: value, Kind: cand.kind}, nil
	}
	return storage.LabelMatcher{}, datamodel.NewError(datamodel.InvalidDataFormat, "gateway: selector clause %q has no recognized operator (=, !=, =~, !~)", clause)
}
