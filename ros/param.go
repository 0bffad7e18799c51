package ros

import (
	"math"
	"strings"

	"github.com/buger/jsonparser"
)

// parseParamValue converts a `_name:=value` command line value into a
// typed parameter. JSON scalars, arrays and objects are decoded;
// anything else is kept as a plain string.
func parseParamValue(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	data := []byte(trimmed)
	value, dataType, end, err := jsonparser.Get(data)
	if err != nil || end != len(data) {
		return s
	}
	if v, ok := decodeJSONValue(value, dataType); ok {
		return v
	}
	return s
}

func decodeJSONValue(value []byte, dataType jsonparser.ValueType) (interface{}, bool) {
	switch dataType {
	case jsonparser.String:
		str, err := jsonparser.ParseString(value)
		return str, err == nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		return b, err == nil
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return int32(i), true
			}
			return float64(i), true
		}
		f, err := jsonparser.ParseFloat(value)
		return f, err == nil
	case jsonparser.Null:
		return "", true
	case jsonparser.Array:
		list := []interface{}{}
		ok := true
		_, err := jsonparser.ArrayEach(value, func(item []byte, t jsonparser.ValueType, _ int, _ error) {
			v, itemOK := decodeJSONValue(item, t)
			ok = ok && itemOK
			list = append(list, v)
		})
		return list, ok && err == nil
	case jsonparser.Object:
		m := map[string]interface{}{}
		err := jsonparser.ObjectEach(value, func(key []byte, item []byte, t jsonparser.ValueType, _ int) error {
			v, itemOK := decodeJSONValue(item, t)
			if !itemOK {
				return jsonparser.MalformedValueError
			}
			m[string(key)] = v
			return nil
		})
		return m, err == nil
	}
	return nil, false
}
