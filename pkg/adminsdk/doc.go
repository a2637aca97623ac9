/*
Package adminsdk is the authenticated HTTP client for the passport admin API.

# Overview

Every call made through a Client passes through three stages:

  - the request interceptor attaches the stored access token and locale,
    stamps an X-Request-ID (the one carried by ctx via slogx.WithRequestID,
    or a fresh ULID) and runs the networkRequest hooks;
  - the transport (pkg/httpx) sends it with a 5 second timeout;
  - the response interceptor runs the networkResponse hooks and classifies
    the {code, message, data} envelope.

	client, err := adminsdk.New(adminsdk.Options{
		BaseURL:    "https://admin.example.com",
		Store:      credstore.NewFile(path),
		LogoutFunc: func(ctx context.Context) { redirectToLogin() },
	})

	if err := client.Login(ctx, "admin", password); err != nil { ... }

	resp, err := client.Get(ctx, "/admin/profile", nil)
	var profile adminsdk.Profile
	err = adminsdk.Decode(resp, &profile)

# Token refresh

An UNAUTHORIZED envelope hands the request to the Coordinator. The first such
request refreshes the session with one POST /admin/passport/refresh carrying
only the refresh token. Requests that hit UNAUTHORIZED while that call is in
flight are queued and wait. When the refresh succeeds the new credentials are
stored, the first request is replayed and the queue is replayed in the order
it was filled. When it fails every queued caller gets ErrSessionExpired, the
credentials are cleared and a single forced logout runs even if many requests
expired together.

# Errors

  - *APIError: an envelope with a code other than SUCCESS. A message has been shown.
  - *HTTPError: a non-2xx status without an envelope.
  - *httpx.TransportError: no response at all. Passed through untouched.
  - ErrSessionExpired: the session could not be recovered; it is logged out.
  - ErrHookFailed: a hook aborted the request.
*/
package adminsdk
