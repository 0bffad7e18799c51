package xmlrpc

import (
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func nextTag(d *xml.Decoder) (xml.StartElement, error) {
	for {
		token, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if elem, ok := token.(xml.StartElement); ok {
			return elem, nil
		}
	}
}

func expectNextTag(d *xml.Decoder, name string) (xml.StartElement, error) {
	tag, err := nextTag(d)
	if err != nil {
		return xml.StartElement{}, err
	}
	if tag.Name.Local != name {
		return xml.StartElement{}, errors.Errorf("expected <%s> but got <%s>", name, tag.Name.Local)
	}
	return tag, nil
}

// charData reads the text content of a scalar element, which may be
// empty.
func charData(d *xml.Decoder, tag string) (string, error) {
	token, err := d.Token()
	if err != nil {
		return "", err
	}
	switch t := token.(type) {
	case xml.CharData:
		s := string(t.Copy())
		if err := d.Skip(); err != nil { // </tag>
			return "", err
		}
		return s, nil
	case xml.EndElement:
		if t.Name.Local == tag {
			return "", nil
		}
	}
	return "", errors.Errorf("%s: unexpected token", tag)
}

// parseScalar decodes a scalar element. On return the closing scalar tag
// has been consumed, but not </value>.
func parseScalar(d *xml.Decoder, tag string) (interface{}, error) {
	data, err := charData(d, tag)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "boolean":
		switch strings.TrimSpace(data) {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, errors.Errorf("boolean: invalid value %q", data)
	case "i4", "int":
		i, err := strconv.ParseInt(strings.TrimSpace(data), 0, 32)
		if err != nil {
			return nil, errors.Wrap(err, tag)
		}
		return int32(i), nil
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
		if err != nil {
			return nil, errors.Wrap(err, tag)
		}
		return f, nil
	case "string":
		return data, nil
	case "base64":
		bs, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return nil, errors.Wrap(err, tag)
		}
		return bs, nil
	}
	return nil, errors.Errorf("not supported: %s", tag)
}

func parseArray(d *xml.Decoder) ([]interface{}, error) {
	if _, err := expectNextTag(d, "data"); err != nil {
		return nil, err
	}
	var a []interface{}
	for {
		token, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := parseValue(d)
				if err != nil {
					return nil, err
				}
				a = append(a, v)
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return a, nil
			}
		}
	}
}

func parseStruct(d *xml.Decoder) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	var name string
	var value interface{}
	for {
		token, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				if name, err = charData(d, "name"); err != nil {
					return nil, err
				}
			case "value":
				if value, err = parseValue(d); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "member":
				m[name] = value
				name, value = "", nil
			case "struct":
				return m, nil
			}
		}
	}
}

// Parse a value after the <value> tag has been read. On (non-error)
// return, the </value> closing tag will have been read.
func parseValue(d *xml.Decoder) (interface{}, error) {
	token, err := d.Token()
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case xml.StartElement:
		var v interface{}
		switch t.Name.Local {
		case "array":
			v, err = parseArray(d)
		case "struct":
			v, err = parseStruct(d)
		case "dateTime.iso8601":
			err = errors.New("dateTime.iso8601 is not supported")
		default:
			v, err = parseScalar(d, t.Name.Local)
		}
		if err != nil {
			return nil, err
		}
		if err := d.Skip(); err != nil { // </value>
			return nil, err
		}
		return v, nil
	case xml.CharData:
		// Untyped values are strings; whitespace around typed values is
		// only formatting.
		s := string(t.Copy())
		if strings.TrimSpace(s) == "" {
			return parseValue(d)
		}
		if err := d.Skip(); err != nil {
			return nil, err
		}
		return s, nil
	case xml.EndElement:
		return "", nil
	}
	return nil, errors.New("invalid data type")
}

func parseRequest(d *xml.Decoder) (string, []interface{}, error) {
	if _, err := expectNextTag(d, "methodCall"); err != nil {
		return "", nil, err
	}
	if _, err := expectNextTag(d, "methodName"); err != nil {
		return "", nil, err
	}
	name, err := charData(d, "methodName")
	if err != nil {
		return "", nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, errors.New("empty methodName")
	}
	if _, err := expectNextTag(d, "params"); err != nil {
		return "", nil, err
	}
	var args []interface{}
	for {
		token, err := d.Token()
		if err != nil {
			return "", nil, errors.Wrap(err, "missing </params>")
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := parseValue(d)
				if err != nil {
					return "", nil, err
				}
				args = append(args, v)
			}
		case xml.EndElement:
			if t.Name.Local == "params" {
				return name, args, nil
			}
		}
	}
}

// parseResponse returns ok=false and the fault struct when the remote
// host answered with a fault.
func parseResponse(d *xml.Decoder) (bool, interface{}, error) {
	if _, err := expectNextTag(d, "methodResponse"); err != nil {
		return false, nil, err
	}
	se, err := nextTag(d)
	if err != nil {
		return false, nil, err
	}
	switch se.Name.Local {
	case "params":
		if _, err := expectNextTag(d, "param"); err != nil {
			return false, nil, err
		}
		if _, err := expectNextTag(d, "value"); err != nil {
			return false, nil, err
		}
		result, err := parseValue(d)
		if err != nil {
			return false, nil, err
		}
		return true, result, nil
	case "fault":
		if _, err := expectNextTag(d, "value"); err != nil {
			return false, nil, err
		}
		result, err := parseValue(d)
		if err != nil {
			return false, nil, err
		}
		return false, result, nil
	}
	return false, nil, errors.Errorf("unexpected <%s> in methodResponse", se.Name.Local)
}
