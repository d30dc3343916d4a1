package bridge

// Error is a failed field resolution carrying the pipeline's original status
// code and message. It implements graphql-go's gqlerrors.ExtendedError so the
// status code reaches the client inside the GraphQL error extensions.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

// Extensions satisfies gqlerrors.ExtendedError.
func (e *Error) Extensions() map[string]any {
	return map[string]any{"code": e.Status}
}
