package middleware

// AdminAuthorizer decides whether a token belongs to the admin set
type AdminAuthorizer interface {
	AuthorizeAdmin(token string) bool
}
