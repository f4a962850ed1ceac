package metrics

import "strconv"

// closeCodeLabel bounds label cardinality: registered codes keep their
// number, application codes (4000-4999) collapse to "4xxx".
func closeCodeLabel(code int) string {
	switch {
	case code >= 4000 && code <= 4999:
		return "4xxx"
	case code >= 1000 && code <= 1015:
		return strconv.Itoa(code)
	default:
		return "other"
	}
}
