package agentloop

import "reflect"

// newLike allocates a fresh zero value with the same type as sample (which
// callers pass as a pointer, e.g. &MyResponse{}) and returns a pointer to
// it, so each structured-output decode attempt gets an independent target
// instead of reusing state across retries.
func newLike(sample any) any {
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}
