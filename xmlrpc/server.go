package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"sync"

	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
)

// Method is a function taking XMLRPC decoded arguments and returning
// (value, error).
type Method interface{}

// Handler dispatches XMLRPC requests to Methods by name.
type Handler struct {
	mapping map[string]Method
	wait    sync.WaitGroup
	log     modular.Logger
}

func NewHandler(mapping map[string]Method) *Handler {
	return &Handler{
		mapping: mapping,
		log:     modular.NewRootLogger(logrus.New()).GetOrCreateChild("xmlrpc", logrus.InfoLevel),
	}
}

// WithLogger replaces the logger used for dispatch failures.
func (h *Handler) WithLogger(log modular.Logger) *Handler {
	h.log = log
	return h
}

// WaitForShutdown blocks until in-flight requests have been answered.
func (h *Handler) WaitForShutdown() {
	h.wait.Wait()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.wait.Add(1)
	defer h.wait.Done()

	var buffer bytes.Buffer
	if err := h.dispatch(&buffer, req); err != nil {
		h.log.Debug(err)
		buffer.Reset()
		_ = emitFault(&buffer, 1, err.Error())
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Header().Set("Content-Length", strconv.Itoa(buffer.Len()))
	if _, err := buffer.WriteTo(w); err != nil {
		h.log.Warn("writing response: ", err)
	}
}

func (h *Handler) dispatch(buf *bytes.Buffer, req *http.Request) error {
	name, args, err := parseRequest(xml.NewDecoder(req.Body))
	if err != nil {
		return fmt.Errorf("invalid request: %v", err)
	}

	method, ok := h.mapping[name]
	if !ok {
		return fmt.Errorf("no method named '%s'", name)
	}

	fun := reflect.ValueOf(method)
	ft := fun.Type()
	if ft.NumIn() != len(args) {
		return fmt.Errorf("method '%s' takes %d arguments, got %d", name, ft.NumIn(), len(args))
	}
	argValues := make([]reflect.Value, len(args))
	for i, v := range args {
		argValue, err := convertArg(v, ft.In(i))
		if err != nil {
			return fmt.Errorf("method '%s' argument %d: %v", name, i, err)
		}
		argValues[i] = argValue
	}

	results := fun.Call(argValues)
	if len(results) != 2 {
		return fmt.Errorf("method '%s' returned invalid results", name)
	}
	if errValue := results[1]; !errValue.IsNil() {
		callErr, _ := errValue.Interface().(error)
		return fmt.Errorf("method '%s' call failed: %v", name, callErr)
	}
	if err := emitResponse(buf, results[0].Interface()); err != nil {
		return fmt.Errorf("method '%s' returned an invalid result type: %v", name, err)
	}
	return nil
}

// convertArg adapts a decoded value to the declared parameter type. A
// nil value (e.g. an empty <value/>) becomes the zero value.
func convertArg(v interface{}, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	value := reflect.ValueOf(v)
	if value.Type().AssignableTo(t) {
		return value, nil
	}
	if value.Type().ConvertibleTo(t) && value.Kind() != reflect.String && t.Kind() != reflect.String {
		return value.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", value.Type(), t)
}
