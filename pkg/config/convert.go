package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x), nil
	}
	return "", errors.New("not a scalar")
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, errors.New("overflows int64")
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, errors.New("overflows int64")
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || x >= math.MaxInt64 || x < math.MinInt64 {
			return 0, errors.New("not an integral number")
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse integer")
		}
		return n, nil
	}
	return 0, errors.Errorf("unsupported type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse number")
		}
		return f, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return false, errors.Errorf("invalid boolean %q", x)
	}
	return false, errors.Errorf("unsupported type %T", v)
}

func toDuration(v any) (time.Duration, error) {
	switch x := v.(type) {
	case time.Duration:
		return x, nil
	case string:
		return ParseDuration(x)
	}
	// bare numbers are milliseconds
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func toPeriod(v any) (Period, error) {
	if s, ok := v.(string); ok {
		return ParsePeriod(s)
	}
	// bare numbers are days
	n, err := toInt64(v)
	if err != nil {
		return Period{}, err
	}
	if int64(int(n)) != n {
		return Period{}, errors.New("overflows int")
	}
	return Period{Days: int(n)}, nil
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
