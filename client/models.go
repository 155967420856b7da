package client

// UserProfile is the resolved identity returned by POST /login and GET /me.
type UserProfile struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
	Store *StoreRef `json:"store,omitempty"`
}

// StoreRef identifies the store attached to a seller account.
type StoreRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductSnapshot is the denormalized product data embedded in a cart line.
// It reflects the catalog as of the last sync and may go stale.
type ProductSnapshot struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	DiscountPrice int64  `json:"discount_price,omitempty"`
	Stock         int    `json:"stock"`
	ImageURL      string `json:"image_url,omitempty"`
	StoreID       int64  `json:"store_id"`
}

// Line is one cart line. ID is the server-assigned line identifier,
// distinct from the product id.
type Line struct {
	ID       int64           `json:"id"`
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /login. User may be omitted by
// servers that only return the token; callers then resolve it via GET /me.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *UserProfile `json:"user,omitempty"`
}

// CartResponse is returned from GET /cart.
type CartResponse struct {
	Items []Line `json:"items"`
}

// AddItemRequest is the JSON body for POST /cart/items.
type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// UpdateItemRequest is the JSON body for PATCH /cart/items/{lineID}.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// ErrorResponse is the JSON error body used by all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
