package source

// Status classifies the outcome of one fetch
type Status int

const (
	// Found means the payload decoded and carries data
	Found Status = iota
	// NotFound means the response was well formed but had no data
	NotFound
	// Failed covers transport errors, timeouts and non-2xx responses
	Failed
	// Malformed means the body could not be decoded
	Malformed
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of a fetch. Err is set for Failed and
// Malformed and is meant for logging only.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK reports whether Value holds data
func (r Result[T]) OK() bool {
	return r.Status == Found
}

func found[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: Found}
}

func notFound[T any]() Result[T] {
	return Result[T]{Status: NotFound}
}

func failed[T any](status Status, err error) Result[T] {
	return Result[T]{Status: status, Err: err}
}
