/*
Package sockjs provides the server side of a SockJS compatible
message-oriented channel: one logical session per peer, carried over
whichever transport the client managed to establish — websocket,
streaming HTTP, plain polling or legacy callback polling.

A Handler is mounted like any net/http.Handler:

	handler := sockjs.NewHandler("/echo", sockjs.DefaultOptions, sockjs.SessionHandlerFuncs{
		Message: func(sess *sockjs.Session, msg string) {
			_ = sess.Send(msg)
		},
	})
	http.ListenAndServe(":8080", handler)

The application only ever observes the OnOpen, OnMessage, OnError and
OnClose callbacks; transport failures, timeouts and malformed frames
are translated into close statuses before they surface.
*/
package sockjs
