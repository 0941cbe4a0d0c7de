package assert

import (
	"encoding/json"
	"reflect"
	"testing"
)

// Equal checks if values are equal
func Equal(t *testing.T, a interface{}, b interface{}) {
	t.Helper()
	if a == b {
		return
	}
	t.Errorf("Received %v (type %v), expected %v (type %v)",
		a, reflect.TypeOf(a), b, reflect.TypeOf(b))
}

// DeepEqual is Equal for slices, maps and other values == can't compare
func DeepEqual(t *testing.T, a interface{}, b interface{}) {
	t.Helper()
	if reflect.DeepEqual(a, b) {
		return
	}
	t.Errorf("Received %#v, expected %#v", a, b)
}

// JSONEqual checks that two JSON documents are equal, ignoring formatting and
// key order
func JSONEqual(t *testing.T, received []byte, expected string) {
	t.Helper()
	var left, right interface{}
	if err := json.Unmarshal(received, &left); err != nil {
		t.Errorf("Received invalid JSON %s: %s", string(received), err)
		return
	}
	if err := json.Unmarshal([]byte(expected), &right); err != nil {
		t.Fatalf("Expected invalid JSON %s: %s", expected, err)
	}
	if !reflect.DeepEqual(left, right) {
		t.Errorf("Received %s, expected %s", string(received), expected)
	}
}

func True(t *testing.T, value bool, msgAndArgs ...interface{}) bool {
	t.Helper()
	if value {
		return true
	}
	if len(msgAndArgs) > 0 {
		t.Errorf("Should be true: "+msgAndArgs[0].(string), msgAndArgs[1:]...)
	} else {
		t.Error("Should be true")
	}
	return false
}

func False(t *testing.T, value bool, msgAndArgs ...interface{}) bool {
	t.Helper()
	return True(t, !value, msgAndArgs...)
}

// NoError stops the test if err is not nil
func NoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
}
