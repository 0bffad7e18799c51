// Package xmlrpc is a small XML-RPC client and server used by the ROS
// master and slave APIs.
package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

func xmlEscape(s string) string {
	var buffer bytes.Buffer
	_ = xml.EscapeText(&buffer, []byte(s))
	return buffer.String()
}

func writeScalar(buf *bytes.Buffer, tag string, text string) {
	buf.WriteString("<" + tag + ">")
	buf.WriteString(text)
	buf.WriteString("</" + tag + ">")
}

func emitValue(buf *bytes.Buffer, value interface{}) error {
	if bs, ok := value.([]byte); ok {
		writeScalar(buf, "base64", base64.StdEncoding.EncodeToString(bs))
		return nil
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return nil
	}

	switch val.Kind() {
	case reflect.Bool:
		if val.Bool() {
			writeScalar(buf, "boolean", "1")
		} else {
			writeScalar(buf, "boolean", "0")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeScalar(buf, "int", strconv.FormatInt(val.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		writeScalar(buf, "int", strconv.FormatUint(val.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		writeScalar(buf, "double", strconv.FormatFloat(val.Float(), 'g', -1, 64))
	case reflect.String:
		writeScalar(buf, "string", xmlEscape(val.String()))
	case reflect.Array, reflect.Slice:
		buf.WriteString("<array><data>")
		for i := 0; i < val.Len(); i++ {
			buf.WriteString("<value>")
			if err := emitValue(buf, val.Index(i).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value>")
		}
		buf.WriteString("</data></array>")
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return errors.New("map key must be string")
		}
		buf.WriteString("<struct>")
		for _, key := range val.MapKeys() {
			buf.WriteString("<member><name>")
			buf.WriteString(xmlEscape(key.String()))
			buf.WriteString("</name><value>")
			if err := emitValue(buf, val.MapIndex(key).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value></member>")
		}
		buf.WriteString("</struct>")
	default:
		return errors.Errorf("unsupported kind %s (%s)", val.Kind(), val.Type())
	}
	return nil
}

func emitRequest(buf *bytes.Buffer, method string, args ...interface{}) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	buf.WriteString(xmlEscape(method))
	buf.WriteString("</methodName><params>")
	for i, arg := range args {
		buf.WriteString("<param><value>")
		if err := emitValue(buf, arg); err != nil {
			return errors.Wrapf(err, "param %d", i)
		}
		buf.WriteString("</value></param>")
	}
	buf.WriteString("</params></methodCall>")
	return nil
}

func emitResponse(buf *bytes.Buffer, value interface{}) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodResponse><params><param><value>")
	if err := emitValue(buf, value); err != nil {
		return err
	}
	buf.WriteString("</value></param></params></methodResponse>")
	return nil
}

func emitFault(buf *bytes.Buffer, code int, message string) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodResponse><fault><value>")
	fault := map[string]interface{}{
		"faultCode":   code,
		"faultString": message,
	}
	if err := emitValue(buf, fault); err != nil {
		return err
	}
	buf.WriteString("</value></fault></methodResponse>")
	return nil
}

// Fault is a XML-RPC fault returned by a remote host.
type Fault struct {
	Code    int32
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("XMLRPC fault: code=%d string=%s", f.Code, f.Message)
}
