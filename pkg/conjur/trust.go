package conjur

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"
)

// maxChainLength bounds the issuer walk in BuildChain.
const maxChainLength = 10

// ChainStatus is a defect found on a certificate chain element.
type ChainStatus int

const (
	StatusNotTimeValid ChainStatus = iota + 1
	StatusNotSignatureValid
	StatusInvalidBasicConstraints
	StatusNotValidForUsage
	StatusPartialChain
	StatusUntrustedRoot
	StatusChainPolicyInvalid
)

func (s ChainStatus) String() string {
	switch s {
	case StatusNotTimeValid:
		return "not time valid"
	case StatusNotSignatureValid:
		return "signature invalid"
	case StatusInvalidBasicConstraints:
		return "invalid basic constraints"
	case StatusNotValidForUsage:
		return "not valid for server authentication"
	case StatusPartialChain:
		return "partial chain"
	case StatusUntrustedRoot:
		return "untrusted root"
	case StatusChainPolicyInvalid:
		return "violates chain constraints"
	default:
		return fmt.Sprintf("ChainStatus(%d)", int(s))
	}
}

// ChainElement is one certificate of a built chain with its own defects.
type ChainElement struct {
	Certificate *x509.Certificate
	Status      []ChainStatus
}

// ChainReport is the outcome of BuildChain. Elements run from the leaf to
// the terminal certificate; Status is the union of element defects in order
// of first appearance, followed by any defect of the chain as a whole.
type ChainReport struct {
	Elements []ChainElement
	Status   []ChainStatus
}

// Terminal returns the last element of the chain.
func (r ChainReport) Terminal() ChainElement {
	if len(r.Elements) == 0 {
		return ChainElement{}
	}
	return r.Elements[len(r.Elements)-1]
}

// AcceptedByExtraRoots reports whether the only thing wrong with the chain
// is that its root is not a system root, and that root is one of extra.
// Any other defect, or a root outside extra, rejects the chain.
func (r ChainReport) AcceptedByExtraRoots(extra *RootSet) bool {
	if len(r.Status) != 1 || r.Status[0] != StatusUntrustedRoot {
		return false
	}
	terminal := r.Terminal()
	if len(terminal.Status) != 1 || terminal.Status[0] != StatusUntrustedRoot {
		return false
	}
	return extra.Contains(terminal.Certificate)
}

// TrustError carries the chain report of a rejected certificate. Err holds
// the crypto/x509 verification error when one explains the rejection.
type TrustError struct {
	Report ChainReport
	Err    error
}

func (e *TrustError) Error() string {
	defects := make([]string, len(e.Report.Status))
	for i, s := range e.Report.Status {
		defects[i] = s.String()
	}
	subject := "<none>"
	if len(e.Report.Elements) > 0 {
		subject = e.Report.Elements[0].Certificate.Subject.String()
	}
	msg := fmt.Sprintf("%s: %s: %s", ErrTrust, subject, strings.Join(defects, ", "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TrustError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTrust, e.Err}
	}
	return []error{ErrTrust}
}

// ChainVerifier validates server certificates against the system trust
// store extended with caller-supplied roots.
type ChainVerifier struct {
	// Roots replaces the system root pool. Nil means the system pool.
	Roots *x509.CertPool

	// CurrentTime overrides the clock used for validity checks.
	CurrentTime func() time.Time
}

// Accepts is the boolean form of Verify.
func (v *ChainVerifier) Accepts(leaf *x509.Certificate, intermediates []*x509.Certificate, extraRoots *RootSet) bool {
	return v.Verify(leaf, intermediates, extraRoots) == nil
}

// Verify returns nil when leaf chains to a system root, or when the chain's
// single defect is an untrusted root that belongs to extraRoots. Otherwise
// it returns a *TrustError.
func (v *ChainVerifier) Verify(leaf *x509.Certificate, intermediates []*x509.Certificate, extraRoots *RootSet) error {
	if leaf == nil {
		return fmt.Errorf("%w: no server certificate", ErrTrust)
	}

	roots := v.roots()
	pool := make([]*x509.Certificate, 0, len(intermediates)+extraRoots.Len())
	pool = append(pool, intermediates...)
	pool = append(pool, extraRoots.Certificates()...)

	aux := x509.NewCertPool()
	for _, cert := range pool {
		aux.AddCert(cert)
	}
	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: aux,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if _, err := leaf.Verify(opts); err == nil {
		return nil
	}

	report := v.BuildChain(leaf, pool)
	if !report.AcceptedByExtraRoots(extraRoots) {
		return &TrustError{Report: report}
	}

	// The report does not cover name, path length or nested usage
	// constraints, so the chain is verified again with the extra roots
	// trusted.
	opts.Roots = roots.Clone()
	for _, cert := range extraRoots.Certificates() {
		opts.Roots.AddCert(cert)
	}
	chains, err := leaf.Verify(opts)
	if err == nil {
		for _, chain := range chains {
			if extraRoots.Contains(chain[len(chain)-1]) {
				return nil
			}
		}
		err = fmt.Errorf("no verified chain ends at an extra root")
	}
	report.Status = append(report.Status, StatusChainPolicyInvalid)
	return &TrustError{Report: report, Err: err}
}

// BuildChain walks from leaf to its root through candidates, recording the
// defects of every element. Root trust is judged against the verifier's
// root pool only; candidates never make a root trusted.
func (v *ChainVerifier) BuildChain(leaf *x509.Certificate, candidates []*x509.Certificate) ChainReport {
	now := v.now()
	chain := []*x509.Certificate{leaf}
	for len(chain) < maxChainLength {
		current := chain[len(chain)-1]
		if isSelfIssued(current) {
			break
		}
		issuer := findIssuer(current, candidates, chain)
		if issuer == nil {
			break
		}
		chain = append(chain, issuer)
	}

	report := ChainReport{Elements: make([]ChainElement, len(chain))}
	for i, cert := range chain {
		var status []ChainStatus
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			status = append(status, StatusNotTimeValid)
		}
		if i == 0 && !validForServerAuth(cert) {
			status = append(status, StatusNotValidForUsage)
		}
		if i > 0 && !(cert.BasicConstraintsValid && cert.IsCA) {
			status = append(status, StatusInvalidBasicConstraints)
		}

		last := i == len(chain)-1
		switch {
		case !last:
			if !signedBy(cert, chain[i+1]) {
				status = append(status, StatusNotSignatureValid)
			}
		case isSelfIssued(cert):
			if !signedBy(cert, cert) {
				status = append(status, StatusNotSignatureValid)
			}
			if !v.isTrustedRoot(cert) {
				status = append(status, StatusUntrustedRoot)
			}
		default:
			status = append(status, StatusPartialChain)
		}

		report.Elements[i] = ChainElement{Certificate: cert, Status: status}
		for _, s := range status {
			if !containsStatus(report.Status, s) {
				report.Status = append(report.Status, s)
			}
		}
	}
	return report
}

// TLSConfig returns a client TLS configuration for serverName that verifies
// the server with Verify and checks the host name. Go's built-in
// verification is turned off because it cannot express the extra-root
// acceptance rule; VerifyConnection takes its place.
func (v *ChainVerifier) TLSConfig(serverName string, extraRoots *RootSet) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // replaced by VerifyConnection
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("%w: server sent no certificate", ErrTrust)
			}
			leaf := cs.PeerCertificates[0]
			if err := leaf.VerifyHostname(serverName); err != nil {
				return fmt.Errorf("%w: %v", ErrTrust, err)
			}
			return v.Verify(leaf, cs.PeerCertificates[1:], extraRoots)
		},
	}
}

// DialTLSContext returns a dial function for http.Transport that completes
// the handshake with TLSConfig for the dialed host. The host is taken from
// the address because the connection state omits IP server names.
func (v *ChainVerifier) DialTLSContext(extraRoots *RootSet) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		raw, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		conn := tls.Client(raw, v.TLSConfig(host, extraRoots))
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (v *ChainVerifier) roots() *x509.CertPool {
	if v.Roots != nil {
		return v.Roots
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		return x509.NewCertPool()
	}
	return pool
}

func (v *ChainVerifier) now() time.Time {
	if v.CurrentTime != nil {
		return v.CurrentTime()
	}
	return time.Now()
}

// isTrustedRoot checks pool membership by verifying the root on its own at
// a moment inside its validity window, so expiry is reported separately.
func (v *ChainVerifier) isTrustedRoot(root *x509.Certificate) bool {
	_, err := root.Verify(x509.VerifyOptions{
		Roots:       v.roots(),
		CurrentTime: root.NotBefore,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

func findIssuer(cert *x509.Certificate, candidates, chain []*x509.Certificate) *x509.Certificate {
	var fallback *x509.Certificate
	for _, candidate := range candidates {
		if !bytes.Equal(candidate.RawSubject, cert.RawIssuer) || inChain(candidate, chain) {
			continue
		}
		if signedBy(cert, candidate) {
			return candidate
		}
		if fallback == nil {
			fallback = candidate
		}
	}
	return fallback
}

func signedBy(cert, issuer *x509.Certificate) bool {
	return issuer.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func isSelfIssued(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer)
}

func validForServerAuth(cert *x509.Certificate) bool {
	if len(cert.ExtKeyUsage) == 0 {
		return true
	}
	for _, usage := range cert.ExtKeyUsage {
		if usage == x509.ExtKeyUsageServerAuth || usage == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}

func inChain(cert *x509.Certificate, chain []*x509.Certificate) bool {
	for _, c := range chain {
		if bytes.Equal(c.Raw, cert.Raw) {
			return true
		}
	}
	return false
}

func containsStatus(list []ChainStatus, s ChainStatus) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}
