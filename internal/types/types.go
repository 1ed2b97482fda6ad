// README: Common identifiers and value objects used across modules.
package types

// ID is an opaque identity issued by the identity provider or the store.
type ID string

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Role is the coarse role asserted by the verified identity token.
type Role string

const (
	RoleDriver   Role = "driver"
	RoleCustomer Role = "customer"
	RoleSupport  Role = "support"
)
