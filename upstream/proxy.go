package upstream

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// CredentialFunc returns the credential resolved for r.
type CredentialFunc func(r *http.Request) (Credential, bool)

// NewProxy forwards /api/... requests to baseURL/... with the credential
// returned by credFn. Requests without one get 401.
func NewProxy(baseURL string, credFn CredentialFunc) (http.Handler, error) {
	target, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = target.Path + strings.TrimPrefix(pr.In.URL.Path, "/api")
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			for _, h := range []string{"Authorization", "Cookie", "X-Cloudflare-Token", "X-Cloudflare-Token-Kind", "X-Cloudflare-Email", "X-Managed-Account-Index", "X-Auth-Key", "X-Auth-Email"} {
				pr.Out.Header.Del(h)
			}
			cred, _ := credFn(pr.In)
			ApplyCredential(pr.Out.Header, cred)
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := credFn(r); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"no upstream credential"}`))
			return
		}
		rp.ServeHTTP(w, r)
	}), nil
}

// ApplyCredential sets the provider authentication headers for cred.
func ApplyCredential(h http.Header, cred Credential) {
	if cred.Kind == KindGlobalKey {
		h.Set("X-Auth-Key", cred.Token)
		h.Set("X-Auth-Email", cred.Email)
		return
	}
	h.Set("Authorization", "Bearer "+cred.Token)
}
