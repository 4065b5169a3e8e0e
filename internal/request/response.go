package request

import "encoding/json"

// Response is the terminal result of processing a request. Success responses
// serialize as {keys, hash, warnings}; failures as {hash, errors, warnings}.
type Response struct {
	Hash     string
	Keys     []string
	Errors   []string
	Warnings []string
	Failed   bool
}

// Success builds a successful response.
func Success(hash string, keys, warnings []string) Response {
	return Response{Hash: hash, Keys: nonNil(keys), Warnings: nonNil(warnings)}
}

// Failure builds a failed response.
func Failure(hash string, errs, warnings []string) Response {
	return Response{Hash: hash, Errors: nonNil(errs), Warnings: nonNil(warnings), Failed: true}
}

type successWire struct {
	Keys     []string `json:"keys"`
	Hash     string   `json:"hash"`
	Warnings []string `json:"warnings"`
}

type failureWire struct {
	Hash     string   `json:"hash"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// MarshalJSON emits the success or failure shape.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed {
		return json.Marshal(failureWire{Hash: r.Hash, Errors: nonNil(r.Errors), Warnings: nonNil(r.Warnings)})
	}
	return json.Marshal(successWire{Keys: nonNil(r.Keys), Hash: r.Hash, Warnings: nonNil(r.Warnings)})
}

// UnmarshalJSON treats any payload carrying an errors field as a failure.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Keys     []string  `json:"keys"`
		Hash     string    `json:"hash"`
		Errors   *[]string `json:"errors"`
		Warnings []string  `json:"warnings"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Response{Hash: wire.Hash, Keys: wire.Keys, Warnings: wire.Warnings}
	if wire.Errors != nil {
		r.Errors = *wire.Errors
		r.Failed = true
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
