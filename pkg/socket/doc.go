// Package socket provides a decorator-free, controller-based real-time event framework
// on top of gorilla/websocket.
//
// # Features
//
//   - Controllers declare namespaces and events explicitly through a Registry
//   - Typed payload validation with go-playground/validator struct tags
//   - Per-event middleware chains, with authentication enforced first
//   - Exactly-once acknowledgments with optional response validation
//   - A single error path that turns any failure into a structured envelope
//   - Room helpers for emitting to rooms, sockets and whole namespaces
//   - Async lifecycle event bus, pluggable metrics and OpenTelemetry spans
//
// # Wire Protocol
//
// Clients connect to GET {Path}/{namespace} (for example /socket/chat) and pass a token
// either as the "token" query parameter or as an "Authorization: Bearer" header.
// The query parameter wins when both are present.
//
// Inbound frames:
//
//	{"event": "chat:message", "data": {...}, "ack": 7}
//
// Outbound frames:
//
//	{"event": "chat:new-message", "data": {...}}
//	{"event": "ack", "ack": 7, "data": {...}}
//	{"event": "error", "data": {"success": false, "error": "...", "code": "WS_VALIDATION_ERROR", ...}}
//
// # Basic Usage
//
//	reg := socket.NewRegistry()
//	ctrl := &ChatController{BaseController: socket.NewBaseController(log)}
//	reg.RegisterNamespace(ctrl, socket.NamespaceDescriptor{Path: "/chat", RequireAuth: true})
//	socket.Handle(reg, ctrl, "chat:join", ctrl.Join, socket.WithAck())
//
//	srv, err := socket.NewServer(socket.Components{
//	    Registry: reg,
//	    Auth:     socket.NewAuthService(verifier),
//	}, socket.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if _, err := srv.Register(ctrl); err != nil {
//	    return err
//	}
//	http.Handle("/socket/", srv)
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	srv.Shutdown(ctx)
//
// # Error Codes
//
//	WS_VALIDATION_ERROR      payload failed its schema
//	WS_AUTH_ERROR            missing, expired or invalid credentials
//	WS_MIDDLEWARE_ERROR      an event middleware rejected the request
//	WS_HANDLER_NOT_FOUND     event metadata without a bound handler
//	WS_ACK_VALIDATION_ERROR  handler result failed the acknowledgment schema
//	WS_INTERNAL_ERROR        anything else, including recovered panics
//
// Events on a single connection are processed sequentially in arrival order.
// Different connections are processed concurrently.
package socket
