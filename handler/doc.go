// Package handler turns typed handler functions into http.HandlerFunc.
//
// A handler receives a Context and a request value populated by the
// configured binders, and returns a Response:
//
//	func updateProfile(ctx handler.Context, req patchRequest) handler.Response {
//		if err := svc.Update(ctx, req.Changes()); err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(view)
//	}
//
//	r.Patch("/api/profile", handler.Wrap(updateProfile,
//		handler.WithBinders[handler.Context, patchRequest](binder.JSON()),
//	))
//
// Responses render differently for DataStar requests (server-sent events)
// and plain HTTP requests. Errors returned from binding or rendering go to
// the ErrorHandler, which answers with a JSON error body or, for DataStar
// requests, an "error" signal patch.
package handler
