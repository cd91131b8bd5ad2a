package port

// SessionCarrier abstracts the client-side transport of the signed session
// token. The HTTP implementation is a cookie bound to a single request; tests
// substitute an in-memory carrier.
type SessionCarrier interface {
	// Token returns the raw signed token, if one was presented.
	Token() (string, bool)
	// Store persists a freshly signed token; rememberMe governs its max age.
	Store(token string, rememberMe bool)
	// Clear deletes the stored token. Effective even when no valid token
	// exists.
	Clear()
}
