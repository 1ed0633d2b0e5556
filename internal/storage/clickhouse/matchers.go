package clickhouse

import (
	"fmt"
	"regexp"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

// matchesAll reports whether sensor satisfies every matcher (§4.5.4),
// identical to the SQLite/PostgreSQL backends' Go-side evaluation.
func matchesAll(sensor datamodel.Sensor, matchers []storage.LabelMatcher) (bool, error) {
	for _, m := range matchers {
		ok, err := matchOne(sensor, m)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(sensor datamodel.Sensor, m storage.LabelMatcher) (bool, error) {
	actual := labelValue(sensor, m.Name)
	switch m.Kind {
	case storage.Equal:
		return actual == m.Value, nil
	case storage.NotEqual:
		return actual != m.Value, nil
	case storage.RegexMatch, storage.RegexNotMatch:
		re, err := regexp.Compile("^(?:" + m.Value + ")$")
		if err != nil {
			return false, fmt.Errorf("compile matcher regex %q: %w", m.Value, err)
		}
		matched := re.MatchString(actual)
		if m.Kind == storage.RegexNotMatch {
			return !matched, nil
		}
		return matched, nil
	default:
		return false, fmt.Errorf("unknown matcher kind %v", m.Kind)
	}
}

func labelValue(sensor datamodel.Sensor, name string) string {
	if name == "__name__" {
		return sensor.Name
	}
	for _, l := range sensor.Labels {
		if l.Key == name {
			return l.Value
		}
	}
	return ""
}
