// Package bssr bridges a buffered middleware stack and a fetch-style renderer that produces complete
// responses, such as a server-side rendering engine.
//
// # Overview
//
// Every request is dispatched to the current middleware [Stack] first. The stack writes into a
// [ResponseWriter] whose status starts at [StatusUnhandled] (404). After the stack returned the
// [Bridge] looks at the status:
//
//   - still [StatusUnhandled]: the stack declined, the request is handed to the fallback, usually a
//     [Fallback] wrapping a [Renderer]
//   - anything else: the buffered response is translated and sent to the client
//
// A minimal example:
//
//	stacks := bssr.NewStacks("app", bssr.EntryLoaderFunc(func(context.Context, string) (bssr.SetupFunc, error) {
//	    return func(s *bssr.Stack) error {
//	        s.HandleFunc("GET /api/ping", func(ctx context.Context, w bssr.ResponseWriter, r *http.Request) error {
//	            w.SetBody(bssr.Text("pong"))
//	            return nil
//	        })
//	        return nil
//	    }, nil
//	}))
//
//	if _, err := stacks.Build(ctx); err != nil {
//	    return err
//	}
//
//	srv := &http.Server{Handler: bssr.NewBridge(stacks, bssr.NewFallback(renderer, logs))}
//
// # Response Bodies
//
// Handlers either write bytes to the response, as with any http.ResponseWriter, or set a [Body]:
//
//   - [Bytes] and [Text] are written verbatim with a Content-Length
//   - [Value] is encoded as JSON
//   - [Stream] and [Chunks] are piped to the client chunk by chunk
//
// A stream that fails, or runs into the deadline set with [WithRequestTimeout], after its head was
// sent aborts the connection so the client does not mistake the partial body for a complete one.
//
// [ResponseWriter.SetNoBody] marks a body as explicitly empty. For HEAD requests, and for statuses that
// do not allow a body, only the head is sent. When no body is set at all the status text is used.
//
// # Locals
//
// Before the stack runs, the request context is stamped with a [Locals] bag. Middleware can store
// values in it and the renderer reads the same bag with [LocalsFrom] when the request is declined.
// With the ambient scope enabled (the default), code deep inside the stack reaches the response of
// the current request with [FromContext].
//
// Headers the stack set on a declined request, such as cookies, are kept on the rendered response.
// Headers that describe the stack's own body are not.
//
// # Error Handling
//
// An error returned by the stack, or a panic, is handed to the [ErrorHandler]. The default handler
// resets the response and answers with the code of an [*Error] (created with [NewError]) or 500. Such a
// request always counts as handled. Errors from the transport while the response is being written
// reach the same error handler, any writes after that are dropped.
//
// # Reloading
//
// [Stacks] builds a stack by loading an entry through an [EntryLoader] and running its [SetupFunc]
// against a new [Stack]. Each build publishes the new stack with a single atomic swap; requests
// that already started finish on the stack they loaded.
//
// # Named Routes and URL Reversing
//
// Routes can be named for URL generation, avoiding hardcoded paths:
//
//	s.HandleFunc("GET /users/{id}", getUser, "get-user")
//	url, err := s.Reverse("get-user", "123")  // returns "/users/123"
//
// The [Reverser] component parses standard library route patterns and
// substitutes path parameters in order. Named routes of a [Stack] mounted with [Stack.MountBare]
// reverse through the parent, with the mount path in front:
//
//	s.MountBare("/admin", admin)
//	url, err := s.Reverse("admin-user", "7")  // returns "/admin/users/7"
package bssr
