package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:          "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:            "Request body error",
	ErrCodeResourceExists:         "Resource %s already exists.",
	ErrCodeResourceNotFound:       "Resource %s not found.",
	ErrCodeLegalActionNotFound:    "Legal action not found.",
	ErrCodeControllerNotFound:     "Controller %s not found.",
	ErrCodeControllerNotConnect:   "Controller %s is not connected.",
	ErrCodeOperatorUnSupported:    "Operator %s is not supported.",
	ErrCodeTooManyPatchOperations: "The allowed maximum operations in a JSON patch is %d.",
	ErrCodeAcquisitionRunning:     "Acquisition for controller %s is already running.",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errors[ErrCodeRequestBody],
}

var ErrLegalActionNotFound = &responseError{
	Code:    ErrCodeLegalActionNotFound,
	Message: errors[ErrCodeLegalActionNotFound],
}

func ErrControllerNotFound(id string) *responseError {
	return generateError(ErrCodeControllerNotFound, id)
}

func ErrControllerNotConnect(id string) *responseError {
	return generateError(ErrCodeControllerNotConnect, id)
}

func ErrOperatorUnSupported(op string) *responseError {
	return generateError(ErrCodeOperatorUnSupported, op)
}

func ErrTooManyJsonPatchOperations(max int) *responseError {
	return generateError(ErrCodeTooManyPatchOperations, max)
}

func ErrAcquisitionRunning(id string) *responseError {
	return generateError(ErrCodeAcquisitionRunning, id)
}
