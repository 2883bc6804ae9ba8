package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AranBhambra/E-Commerce-DS/internal/account"
	"github.com/AranBhambra/E-Commerce-DS/internal/cart"
	"github.com/AranBhambra/E-Commerce-DS/internal/catalog"
	"github.com/AranBhambra/E-Commerce-DS/internal/cluster"
	"github.com/AranBhambra/E-Commerce-DS/internal/health"
	"github.com/AranBhambra/E-Commerce-DS/internal/replication"
)

// connDeadline bounds one whole connection: read, handle (including the
// joined replication fan-out), and write.
const connDeadline = 30 * time.Second

// server dispatches wire requests for one shard.
type server struct {
	id         cluster.ShardID
	topology   *cluster.Topology
	accounts   *account.Manager
	catalog    *catalog.Manager
	carts      *cart.Executor
	queue      *replication.Queue
	replicator *replication.Replicator
	drainer    *replication.Drainer
	monitor    *health.Monitor
}

// handleConn reads one framed request, dispatches it, writes one framed
// response, and closes the connection.
func (s *server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(connDeadline)); err != nil {
		log.Printf("shard[%s] set deadline: %v", s.id, err)
		return
	}

	var req cluster.Request
	if err := cluster.ReadFrame(conn, &req); err != nil {
		log.Printf("shard[%s] read request: %v", s.id, err)
		return
	}

	resp := s.dispatch(ctx, &req)
	if err := cluster.WriteFrame(conn, resp); err != nil {
		log.Printf("shard[%s] write response: %v", s.id, err)
	}
}

// dispatch routes one request to its action handler. The effective roster
// for the request is the shard's probed view overlaid with whatever online
// and offline marks the caller supplied.
func (s *server) dispatch(ctx context.Context, req *cluster.Request) *cluster.Response {
	roster := s.monitor.Roster().Overlay(req.Online, req.Offline)

	switch req.Action {
	case cluster.ActionPing:
		return &cluster.Response{Status: cluster.StatusSuccess}
	case cluster.ActionLogin:
		return s.handleLogin(ctx, req.Data, roster)
	case cluster.ActionListProducts:
		return s.handleListProducts(ctx)
	case cluster.ActionAddToCart:
		return s.handleAddToCart(ctx, req.Data, roster)
	case cluster.ActionViewCart:
		return s.handleViewCart(ctx, req.Data)
	case cluster.ActionRemoveFromCart:
		return s.handleRemoveFromCart(ctx, req.Data, roster)
	case cluster.ActionCheckout:
		return s.handleCheckout(ctx, req.Data, roster)
	case cluster.ActionSync:
		return s.handleSync(ctx, req)
	default:
		return errorResponse("Unknown action: %s", req.Action)
	}
}

// handleLogin authenticates the user and, on success, opportunistically
// drains this shard's pending replication records. Drain failures never
// fail the login.
func (s *server) handleLogin(ctx context.Context, data json.RawMessage, roster cluster.Roster) *cluster.Response {
	var p cluster.LoginPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errorResponse("Malformed login payload.")
	}
	userID, err := s.accounts.Login(ctx, p.Username, p.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		return errorResponse("Invalid username or password.")
	}
	if err != nil {
		return errorResponse("Login failed: %v", err)
	}

	if err := s.drainer.DrainPending(ctx, roster); err != nil {
		log.Printf("shard[%s] drain on login: %v", s.id, err)
	}

	return &cluster.Response{
		Status:  cluster.StatusSuccess,
		Message: "Login successful!",
		UserID:  userID,
	}
}

func (s *server) handleListProducts(ctx context.Context) *cluster.Response {
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return errorResponse("Failed to list products: %v", err)
	}
	return &cluster.Response{Status: cluster.StatusSuccess, Products: products}
}

func (s *server) handleViewCart(ctx context.Context, data json.RawMessage) *cluster.Response {
	var p cluster.ViewCartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errorResponse("Malformed view_cart payload.")
	}
	cartID, items, err := s.carts.ViewCart(ctx, p.UserID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return errorResponse("Cart not found.")
	}
	if err != nil {
		return errorResponse("Failed to view cart: %v", err)
	}
	return &cluster.Response{
		Status:    cluster.StatusSuccess,
		CartItems: items,
		CartID:    cartID,
	}
}

// handleAddToCart commits the mutation locally, then fans it out to every
// peer. The response reports local success even when peers fail; each
// failed peer only appends an advisory naming it.
func (s *server) handleAddToCart(ctx context.Context, data json.RawMessage, roster cluster.Roster) *cluster.Response {
	var p cluster.AddToCartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errorResponse("Malformed add_to_cart payload.")
	}
	cartID, err := s.carts.AddToCart(ctx, p.UserID, p.ProductID, p.Quantity)
	if err != nil {
		return errorResponse("Failed to add product to cart: %v", err)
	}

	p.MutationID = uuid.NewString()
	p.CartID = cartID
	outcomes := s.replicate(ctx, p.UserID, cluster.ActionAddToCart, replication.StepAddToCart, p, roster)

	return successWithAdvisories("Product added to cart.", cartID, outcomes)
}

func (s *server) handleRemoveFromCart(ctx context.Context, data json.RawMessage, roster cluster.Roster) *cluster.Response {
	var p cluster.RemoveFromCartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errorResponse("Malformed remove_from_cart payload.")
	}
	cartID, err := s.carts.RemoveFromCart(ctx, p.UserID, p.ProductName)
	if errors.Is(err, cart.ErrCartNotFound) {
		return errorResponse("Cart not found.")
	}
	if err != nil {
		return errorResponse("Failed to remove product from cart: %v", err)
	}

	p.MutationID = uuid.NewString()
	p.CartID = cartID
	outcomes := s.replicate(ctx, p.UserID, cluster.ActionRemoveFromCart, replication.StepRemoveFromCart, p, roster)

	return successWithAdvisories("Product removed from cart.", cartID, outcomes)
}

func (s *server) handleCheckout(ctx context.Context, data json.RawMessage, roster cluster.Roster) *cluster.Response {
	var p cluster.CheckoutPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errorResponse("Malformed checkout payload.")
	}
	result, err := s.carts.Checkout(ctx, p.UserID, p.CartID)
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		return errorResponse("Cart is empty.")
	case errors.Is(err, cart.ErrInsufficientStock):
		return errorResponse("Checkout failed: %v", err)
	case err != nil:
		return errorResponse("Checkout failed: %v", err)
	}

	sync := cluster.CheckoutPayload{
		MutationID:  uuid.NewString(),
		UserID:      p.UserID,
		CartID:      result.CartID,
		TotalAmount: result.TotalAmount,
		CartItems:   result.Items,
	}
	outcomes := s.replicate(ctx, p.UserID, cluster.ActionCheckout, replication.StepCheckout, sync, roster)

	return successWithAdvisories("Checkout completed successfully.", result.CartID, outcomes)
}

// handleSync applies a mutation replicated from a peer shard, dispatching
// on sync_action. Replays of an already-applied mutation id succeed.
func (s *server) handleSync(ctx context.Context, req *cluster.Request) *cluster.Response {
	switch req.SyncAction {
	case cluster.ActionAddToCart:
		var p cluster.AddToCartPayload
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return errorResponse("Malformed sync add_to_cart payload.")
		}
		if err := s.carts.ApplyAddToCart(ctx, p, req.SourceShard); err != nil {
			return errorResponse("Sync add_to_cart failed: %v", err)
		}
		return &cluster.Response{Status: cluster.StatusSuccess, Message: "Sync add_to_cart successful."}
	case cluster.ActionRemoveFromCart:
		var p cluster.RemoveFromCartPayload
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return errorResponse("Malformed sync remove_from_cart payload.")
		}
		if err := s.carts.ApplyRemoveFromCart(ctx, p, req.SourceShard); err != nil {
			return errorResponse("Sync remove_from_cart failed: %v", err)
		}
		return &cluster.Response{Status: cluster.StatusSuccess, Message: "Sync remove_from_cart successful."}
	case cluster.ActionCheckout:
		var p cluster.CheckoutPayload
		if err := json.Unmarshal(req.Data, &p); err != nil {
			return errorResponse("Malformed sync checkout payload.")
		}
		if err := s.carts.ApplyCheckout(ctx, p, req.SourceShard); err != nil {
			return errorResponse("Sync checkout failed: %v", err)
		}
		return &cluster.Response{Status: cluster.StatusSuccess, Message: "Sync checkout successful."}
	default:
		return errorResponse("Unknown sync action: %s", req.SyncAction)
	}
}

// replicate serializes a committed mutation and fans it out to all peers.
func (s *server) replicate(ctx context.Context, userID int64, action string, step int, payload any, roster cluster.Roster) []replication.PeerOutcome {
	raw, err := json.Marshal(payload)
	if err != nil {
		// The payload types are plain structs; failing to marshal one is a
		// programming error, not a peer failure.
		log.Printf("shard[%s] marshal %s payload: %v", s.id, action, err)
		return nil
	}
	task := replication.Task{
		UserID:  userID,
		Action:  action,
		Payload: raw,
		Source:  s.id,
		Step:    step,
	}
	return s.replicator.FanOut(ctx, task, roster)
}

// successWithAdvisories builds the success response for a committed local
// mutation, appending one advisory per peer that could not be reached.
func successWithAdvisories(message string, cartID int64, outcomes []replication.PeerOutcome) *cluster.Response {
	var b strings.Builder
	b.WriteString(message)
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(&b, " Failed to synchronize with server %s.", o.Target)
		}
	}
	return &cluster.Response{
		Status:  cluster.StatusSuccess,
		Message: b.String(),
		CartID:  cartID,
	}
}

func errorResponse(format string, args ...any) *cluster.Response {
	return &cluster.Response{
		Status:  cluster.StatusError,
		Message: fmt.Sprintf(format, args...),
	}
}
