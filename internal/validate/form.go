package validate

// FormResponse maps each form field to its validation state for the client:
//
//   - true: the field has been validated and passed
//   - nil: the field has not yet been validated
//   - a string: the field has been validated and failed, the string is the
//     reason
//
// For example:
//
//	{"a": true, "b": true, "c": "Not a valid number.", "d": nil}
type FormResponse map[string]any

// BuildFormResponse builds the response to a form validation request.
//
// Forms are completed incrementally: field values are validated in their
// declared order and processing stops at the first field that failed
// validation or was never completed (nil). All subsequent states are forced
// to nil, which makes the client reset those inputs.
func BuildFormResponse(orderedFields []string, values []any, err *Error) FormResponse {
	response := make(FormResponse, len(orderedFields))
	skipRest := false
	for i, field := range orderedFields {
		if skipRest {
			response[field] = nil
			continue
		}
		if err != nil && err.Key == "/"+field {
			response[field] = err.Message
			skipRest = true
			continue
		}
		if values[i] == nil {
			response[field] = nil
			skipRest = true
			continue
		}
		response[field] = true
	}
	return response
}

// Passed reports whether a field has been validated and passed.
func (r FormResponse) Passed(field string) bool {
	v, ok := r[field]
	return ok && v == true
}

// Pending reports whether a field has not yet been validated.
func (r FormResponse) Pending(field string) bool {
	v, ok := r[field]
	return ok && v == nil
}

// Failed reports whether any field carries a failure message.
func (r FormResponse) Failed() bool {
	for _, v := range r {
		if _, failed := v.(string); failed {
			return true
		}
	}
	return false
}
