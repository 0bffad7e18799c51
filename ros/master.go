package ros

import (
	"context"
	"fmt"

	"github.com/edwinhayes/rcprobe/xmlrpc"
	"github.com/pkg/errors"
)

const (
	//APIStatusError is an API call which returned an Error
	APIStatusError = -1
	//APIStatusFailure is a failed API call
	APIStatusFailure = 0
	//APIStatusSuccess is a successful API call
	APIStatusSuccess = 1
)

// APIError is a ROS API call answered with a non-success status code.
type APIError struct {
	Method  string
	Code    int32
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ROS API %s failed with code %d: %s", e.Method, e.Code, e.Message)
}

// callRosAPI performs an XML-RPC call against a master or slave API and
// unpacks the [code, statusMessage, value] triplet.
func callRosAPI(calleeURI string, method string, args ...interface{}) (interface{}, error) {
	return callRosAPIContext(context.Background(), calleeURI, method, args...)
}

func callRosAPIContext(ctx context.Context, calleeURI string, method string, args ...interface{}) (interface{}, error) {
	result, err := xmlrpc.CallContext(ctx, calleeURI, method, args...)
	if err != nil {
		return nil, err
	}

	xs, ok := result.([]interface{})
	if !ok {
		return nil, errors.Errorf("malformed ROS API result for %s", method)
	}
	if len(xs) != 3 {
		return nil, errors.Errorf("malformed ROS API result for %s: length must be 3 but %d", method, len(xs))
	}
	code, ok := xs[0].(int32)
	if !ok {
		return nil, errors.Errorf("%s: status code is not int", method)
	}
	message, ok := xs[1].(string)
	if !ok {
		return nil, errors.Errorf("%s: status message is not string", method)
	}
	if code != APIStatusSuccess {
		return nil, &APIError{Method: method, Code: code, Message: message}
	}
	return xs[2], nil
}

// Build XMLRPC ready array from ROS API result triplet.
func buildRosAPIResult(code int32, message string, value interface{}) interface{} {
	return []interface{}{code, message, value}
}

// stringList converts an XMLRPC array of strings.
func stringList(value interface{}) ([]string, error) {
	list, ok := value.([]interface{})
	if !ok && value != nil {
		return nil, errors.Errorf("expected a list but got %T", value)
	}
	result := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Errorf("expected a string but got %T", item)
		}
		result = append(result, s)
	}
	return result, nil
}
