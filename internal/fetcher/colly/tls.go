package collyfetcher

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
)

// insecureMarkerHeader tags responses served over an unverified connection.
// It is stripped before results leave the package.
const insecureMarkerHeader = "X-Indexer-Insecure-Tls"

// tlsFallbackTransport retries a request once without certificate
// verification when the verified attempt fails on the certificate itself.
type tlsFallbackTransport struct {
	secure   http.RoundTripper
	insecure http.RoundTripper
	logger   *zap.Logger
}

func (t *tlsFallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("tls fallback transport received nil request")
	}
	resp, err := t.secure.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if !isCertificateError(err) {
		return nil, fmt.Errorf("tls fallback base roundtrip: %w", err)
	}
	t.logger.Warn("certificate verification failed, retrying without verification",
		zap.String("url", req.URL.String()),
		zap.Error(err),
	)
	metrics.ObserveInsecureRetry(req.URL.String())

	resp, err = t.insecure.RoundTrip(cloneRequest(req))
	if err != nil {
		return nil, fmt.Errorf("tls fallback insecure roundtrip: %w", err)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(insecureMarkerHeader, "1")
	return resp, nil
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func newInsecureTransport(base *http.Transport) *http.Transport {
	insecure := base.Clone()
	// #nosec G402 -- used only after verified TLS failed on the certificate.
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return insecure
}

func isCertificateError(err error) bool {
	if err == nil {
		return false
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &invalidErr)
}
