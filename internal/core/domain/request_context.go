package domain

// RequestContext carries the caller identity and site scope through resolver
// and dispatcher calls. It is always passed explicitly as an argument; nothing
// in this module reads ambient process-wide state.
type RequestContext struct {
	// Actor names the operator or system principal triggering the call.
	Actor string
	// SiteID scopes page-tree traversal to one site root. Zero means the
	// whole tree.
	SiteID int64
}
