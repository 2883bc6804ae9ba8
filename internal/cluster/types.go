package cluster

import "encoding/json"

// ShardID identifies one shard process in the cluster, e.g. "A".
type ShardID string

// Response status values carried on every reply.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Actions understood by a shard process.
const (
	ActionLogin          = "login"
	ActionListProducts   = "list_products"
	ActionAddToCart      = "add_to_cart"
	ActionViewCart       = "view_cart"
	ActionRemoveFromCart = "remove_from_cart"
	ActionCheckout       = "checkout"
	ActionSync           = "sync"
	ActionPing           = "ping"
)

// Request is the single message a client or peer sends on a connection.
//
// Data is the action-specific payload, left raw so the handler can decode it
// once the action is known. Online and Offline carry the caller's belief
// about peer reachability; both are advisory and overlay the shard's own
// probed view. Sync requests additionally set SyncAction and SourceShard.
type Request struct {
	Action      string           `json:"action"`
	Data        json.RawMessage  `json:"data,omitempty"`
	SyncAction  string           `json:"sync_action,omitempty"`
	SourceShard ShardID          `json:"source_server,omitempty"`
	Online      map[ShardID]bool `json:"online_servers,omitempty"`
	Offline     map[ShardID]bool `json:"offline_servers,omitempty"`
}

// Response is the single message a shard writes back before closing the
// connection. Action-specific fields are populated only when relevant.
type Response struct {
	Status    string     `json:"status"`
	Message   string     `json:"message,omitempty"`
	UserID    int64      `json:"user_id,omitempty"`
	Products  []Product  `json:"products,omitempty"`
	CartItems []CartItem `json:"cart_items,omitempty"`
	CartID    int64      `json:"cart_id,omitempty"`
}

// OK reports whether the response carries a success status.
func (r *Response) OK() bool { return r.Status == StatusSuccess }

// Product is one catalog entry joined with its stock counter.
// Price is a plain JSON number.
type Product struct {
	ProductID   int64   `json:"product_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
}

// CartItem is one line of a user's cart as returned by view_cart.
type CartItem struct {
	ProductName string  `json:"product_name"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
}

// LoginPayload is the data field of a login request.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ViewCartPayload is the data field of a view_cart request.
type ViewCartPayload struct {
	UserID int64 `json:"user_id"`
}

// AddToCartPayload is the data field of an add_to_cart request and of its
// replicated sync form. MutationID is minted by the originating shard so
// peers can apply the mutation at most once; it is empty on the initial
// client request.
type AddToCartPayload struct {
	MutationID string `json:"mutation_id,omitempty"`
	UserID     int64  `json:"user_id"`
	ProductID  int64  `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	CartID     int64  `json:"cart_id,omitempty"`
}

// RemoveFromCartPayload is the data field of a remove_from_cart request and
// of its replicated sync form.
type RemoveFromCartPayload struct {
	MutationID  string `json:"mutation_id,omitempty"`
	UserID      int64  `json:"user_id"`
	ProductName string `json:"product_name"`
	CartID      int64  `json:"cart_id,omitempty"`
}

// CheckoutPayload is the data field of a checkout request. The replicated
// sync form carries the applied line items and total so peers rebuild the
// order from the payload instead of re-deriving it from their own cart.
type CheckoutPayload struct {
	MutationID  string         `json:"mutation_id,omitempty"`
	UserID      int64          `json:"user_id"`
	CartID      int64          `json:"cart_id"`
	TotalAmount float64        `json:"total_amount,omitempty"`
	CartItems   []CheckoutItem `json:"cart_items,omitempty"`
}

// CheckoutItem is one order line inside a replicated checkout payload.
type CheckoutItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
}

// Roster is an ephemeral belief about peer reachability, keyed by shard id.
// true means online, false means offline, absent means unknown. Unknown
// peers are treated as reachable: the replicator attempts delivery and lets
// the connection outcome decide.
type Roster map[ShardID]bool

// MarkedOffline reports whether the roster explicitly marks id as offline.
func (r Roster) MarkedOffline(id ShardID) bool {
	v, ok := r[id]
	return ok && !v
}

// Overlay returns a copy of the roster with the caller-supplied online and
// offline marks applied on top. An explicit caller mark wins over the
// probed view for the duration of one request.
func (r Roster) Overlay(online, offline map[ShardID]bool) Roster {
	out := make(Roster, len(r)+len(online)+len(offline))
	for id, up := range r {
		out[id] = up
	}
	for id, v := range online {
		if v {
			out[id] = true
		}
	}
	for id, v := range offline {
		if v {
			out[id] = false
		}
	}
	return out
}
