// Package session issues, stores and transports authenticated session tokens.
//
// A Manager mints opaque random tokens bound to a user id, persists them in a
// Store (in memory or Redis) and moves them between client and server with a
// Transport (encrypted cookie, bearer header, or both). Expiry combines a
// sliding idle timeout with an absolute lifetime. Activity updates are written
// by a background worker so lookups on the request path never block on them.
//
//	mgr := session.New(
//		session.WithStore(session.NewRedisStore(rdb)),
//		session.WithCookieManager(cookies),
//	)
//	defer mgr.Close()
//
//	sess, err := mgr.Issue(ctx, userID)
//	_ = mgr.Attach(w, sess)
package session
