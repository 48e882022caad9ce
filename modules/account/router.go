// Package account serves the sign-in, registration, sign-out and email
// confirmation routes.
package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects the services served by Router.
type RouterOptions struct {
	Password Mountable
}

// Router combines the configured services. Mount it under /auth, which the
// route guard leaves reachable without a session.
//
//	passwords := account.NewPasswordService(cfg, authSvc, sessionMgr)
//	r.Mount("/auth", account.Router(account.RouterOptions{Password: passwords}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	if opts.Password != nil {
		r.Mount("/", opts.Password.Handle())
	}
	return r
}
