package types

// SuccessEnvelope is the uniform happy-path response body. List payloads
// carry their own cursor inside Data.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Details is populated only for codes
// whose metadata allows it, so internals never leak through the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
