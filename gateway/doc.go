// Package gateway carries renderer gestures to an annotation.Engine.
//
// A gesture is a JSON envelope naming what the user did:
//
//	{"type": "shape", "id": "g-17", "channel": 1, "diff": {"shapes[0].x0": 12000, "shapes[0].x1": 20000, "shapes[0].y0": -5, "shapes[0].y1": 5}}
//	{"type": "window", "window": {"start": 0, "end": 20000}}
//	{"type": "save_comment", "text": "ST elevation"}
//
// A Session applies gestures to one engine in order and answers each with a
// Reply carrying the refreshed render state or a classified error. After a
// fatal error the renderer and the engine no longer agree on the shapes, so
// the session refuses further gestures.
//
// Server exposes sessions over websocket, one engine per connection:
//
//	srv := gateway.NewServer(gateway.DefaultConfig(), factory, gateway.WithLogger(logger))
//	srv.RegisterHTTPHandlers("/ws", mux)
//
// The same envelopes, one per line, drive the replay command.
package gateway
