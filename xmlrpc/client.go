package xmlrpc

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultClient is used by Call. The ROS APIs are local and cheap, so
// a stuck peer is treated as an error.
var DefaultClient = &http.Client{Timeout: 10 * time.Second}

// Call a XMLRPC API in a remote host.
func Call(url string, method string, args ...interface{}) (interface{}, error) {
	return CallContext(context.Background(), url, method, args...)
}

// CallContext is Call with a context bounding the whole round trip.
func CallContext(ctx context.Context, url string, method string, args ...interface{}) (interface{}, error) {
	var buffer bytes.Buffer
	if err := emitRequest(&buffer, method, args...); err != nil {
		return nil, errors.Wrapf(err, "building %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buffer)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s request", method)
	}
	req.Header.Set("Content-Type", "text/xml")
	resp, err := DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "sending %s request", method)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s: HTTP failed with %s", method, resp.Status)
	}

	ok, result, err := parseResponse(xml.NewDecoder(resp.Body))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s response", method)
	}
	if ok {
		return result, nil
	}

	m, isMap := result.(map[string]interface{})
	if isMap {
		code, codeOK := m["faultCode"].(int32)
		message, msgOK := m["faultString"].(string)
		if codeOK && msgOK {
			return nil, &Fault{Code: code, Message: message}
		}
	}
	return nil, errors.New("malformed XMLRPC fault response")
}
