package hostfn

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/platform-net/validator-core/policy"
)

// NetworkHost implements the network capability's logic: http_request,
// http_get, http_post, dns_resolve, log_message, get_timestamp.
// wasmrt binds each of these onto wazero host functions that marshal guest
// memory into the request/response structs below.
type NetworkHost struct {
	policy *policy.NormalizedNetworkPolicy
	state  *State
	doer   HTTPDoer
}

// HTTPDoer performs the actual outbound HTTP call. Production code wires a
// real *http.Client; tests can substitute a stub.
type HTTPDoer interface {
	Do(req HTTPRequest) (HTTPResponse, error)
}

// HTTPRequest mirrors the guest-supplied request payload.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse mirrors the response handed back to the guest.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// NewNetworkHost builds a NetworkHost bound to a normalized policy,
// instance state, and an HTTP transport.
func NewNetworkHost(p *policy.NormalizedNetworkPolicy, state *State, doer HTTPDoer) *NetworkHost {
	return &NetworkHost{policy: p, state: state, doer: doer}
}

// HTTPRequestFn performs the full enforcement order (policy disabled ->
// scheme -> host -> port -> limits) before delegating to the transport.
func (n *NetworkHost) HTTPRequestFn(req HTTPRequest) (HTTPResponse, Status) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return HTTPResponse{}, StatusNotAllowed
	}
	port := portOf(u)

	if polErr := n.policy.IsHTTPRequestAllowed(u.Scheme, u.Hostname(), port); polErr != nil {
		n.state.Audit.Append(AuditEntry{
			Action: AuditPolicyDenied,
			At:     n.state.Clock.NowMs(),
			Detail: req.URL,
			Reason: polErr.Error(),
		})
		return HTTPResponse{}, StatusNotAllowed
	}

	limits := n.policy.Raw().Limits
	if limits.MaxRequestBytes > 0 && uint64(len(req.Body)) > limits.MaxRequestBytes {
		return HTTPResponse{}, StatusLimitExceeded
	}
	if limits.MaxRequests > 0 {
		count := n.state.Counters.HTTPRequests.Add(1)
		if uint32(count) > limits.MaxRequests {
			return HTTPResponse{}, StatusLimitExceeded
		}
	} else {
		n.state.Counters.HTTPRequests.Add(1)
	}

	n.state.Audit.Append(AuditEntry{Action: AuditHTTPRequest, At: n.state.Clock.NowMs(), Detail: req.URL})

	resp, err := n.doer.Do(req)
	if err != nil {
		return HTTPResponse{}, StatusInternalError
	}
	if limits.MaxResponseBytes > 0 && uint64(len(resp.Body)) > limits.MaxResponseBytes {
		return HTTPResponse{}, StatusLimitExceeded
	}

	n.state.Audit.Append(AuditEntry{Action: AuditHTTPResponse, At: n.state.Clock.NowMs(), Detail: req.URL})
	return resp, StatusSuccess
}

// HTTPGetFn and HTTPPostFn are convenience wrappers over HTTPRequestFn matching
// the host-function names listed in spec.md §4.2.
func (n *NetworkHost) HTTPGetFn(url string, headers map[string]string) (HTTPResponse, Status) {
	return n.HTTPRequestFn(HTTPRequest{Method: "GET", URL: url, Headers: headers})
}

func (n *NetworkHost) HTTPPostFn(url string, headers map[string]string, body []byte) (HTTPResponse, Status) {
	return n.HTTPRequestFn(HTTPRequest{Method: "POST", URL: url, Headers: headers, Body: body})
}

// DNSResolveFn enforces the DNS policy before delegating to resolve.
func (n *NetworkHost) DNSResolveFn(host, recordType string, resolve func(string, string) ([]string, error)) ([]string, Status) {
	if !n.policy.IsDNSLookupAllowed(host, recordType) {
		n.state.Audit.Append(AuditEntry{
			Action: AuditPolicyDenied, At: n.state.Clock.NowMs(), Detail: host, Reason: "dns",
		})
		return nil, StatusNotAllowed
	}
	maxLookups := n.policy.Raw().DNS.MaxLookups
	if maxLookups > 0 {
		count := n.state.Counters.DNSLookups.Add(1)
		if uint32(count) > maxLookups {
			return nil, StatusLimitExceeded
		}
	} else {
		n.state.Counters.DNSLookups.Add(1)
	}

	n.state.Audit.Append(AuditEntry{Action: AuditDNSLookup, At: n.state.Clock.NowMs(), Detail: host})
	addrs, err := resolve(host, recordType)
	if err != nil {
		return nil, StatusInternalError
	}
	return addrs, StatusSuccess
}

// LogMessageFn records a guest log line; audited at debug level by the caller.
func (n *NetworkHost) LogMessageFn(msg string) Status {
	return StatusSuccess
}

// GetTimestampFn returns the instance's current time per the Time host semantics.
func (n *NetworkHost) GetTimestampFn() int64 {
	return n.state.Clock.NowMs()
}

func portOf(u *url.URL) uint16 {
	if p := u.Port(); p != "" {
		var port int
		for _, r := range p {
			port = port*10 + int(r-'0')
		}
		return uint16(port)
	}
	switch u.Scheme {
	case "https":
		return 443
	case "http":
		return 80
	default:
		return 0
	}
}

// HTTPClientDoer is the production HTTPDoer, backed by a real net/http
// client. Tests substitute a stub HTTPDoer instead of this type.
type HTTPClientDoer struct {
	client *http.Client
}

// NewHTTPClientDoer builds an HTTPClientDoer with the given overall
// per-request timeout. Redirects are followed up to net/http's default
// policy; the network policy's own MaxRedirects is not separately
// enforced here since Go's client API has no hook for a bare count.
func NewHTTPClientDoer(timeout time.Duration) *HTTPClientDoer {
	return &HTTPClientDoer{client: &http.Client{Timeout: timeout}}
}

func (d *HTTPClientDoer) Do(req HTTPRequest) (HTTPResponse, error) {
	httpReq, err := http.NewRequest(req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return HTTPResponse{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return HTTPResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return HTTPResponse{}, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return HTTPResponse{StatusCode: resp.StatusCode, Headers: headers, Body: body}, nil
}

// DefaultDNSResolve is the production resolve function passed to
// NetworkHost.DNSResolveFn: A/AAAA lookups use net.LookupHost, CNAME uses
// net.LookupCNAME, anything else is rejected as unsupported.
func DefaultDNSResolve(host, recordType string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch recordType {
	case "A", "AAAA", "":
		return net.DefaultResolver.LookupHost(ctx, host)
	case "CNAME":
		cname, err := net.DefaultResolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		return []string{cname}, nil
	default:
		return nil, errUnsupportedRecordType(recordType)
	}
}

type unsupportedRecordTypeError string

func (e unsupportedRecordTypeError) Error() string { return "unsupported DNS record type: " + string(e) }

func errUnsupportedRecordType(recordType string) error {
	return unsupportedRecordTypeError(recordType)
}
