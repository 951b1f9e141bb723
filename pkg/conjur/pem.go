package conjur

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// pemCertificateBlock matches each certificate body lazily so that
// consecutive blocks are captured separately. Headers inside a block and
// text around blocks are not interpreted.
var pemCertificateBlock = regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----(.*?)-----END CERTIFICATE-----`)

// RootSet is a set of CA certificates trusted in addition to the system
// trust store. It must not be modified while a client using it is active.
type RootSet struct {
	certs []*x509.Certificate
}

// NewRootSet returns a set holding certs.
func NewRootSet(certs ...*x509.Certificate) *RootSet {
	s := &RootSet{}
	for _, cert := range certs {
		s.Add(cert)
	}
	return s
}

// Add inserts cert unless an identical certificate is already present.
func (s *RootSet) Add(cert *x509.Certificate) {
	if cert == nil || s.Contains(cert) {
		return
	}
	s.certs = append(s.certs, cert)
}

// Contains reports whether a byte-identical certificate is in the set.
func (s *RootSet) Contains(cert *x509.Certificate) bool {
	if s == nil || cert == nil {
		return false
	}
	for _, c := range s.certs {
		if bytes.Equal(c.Raw, cert.Raw) {
			return true
		}
	}
	return false
}

// Len returns the number of certificates. A nil set is empty.
func (s *RootSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.certs)
}

// Certificates returns a copy of the set's certificates.
func (s *RootSet) Certificates() []*x509.Certificate {
	if s == nil {
		return nil
	}
	out := make([]*x509.Certificate, len(s.certs))
	copy(out, s.certs)
	return out
}

// ImportPEM adds every certificate found in the PEM file at path and
// returns how many were added. See ParseCertificates for error semantics.
func (s *RootSet) ImportPEM(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read certificate file: %w", err)
	}
	return s.ImportPEMBytes(data)
}

// ImportPEMBytes is ImportPEM for in-memory data.
func (s *RootSet) ImportPEMBytes(data []byte) (int, error) {
	certs, err := ParseCertificates(data)
	before := s.Len()
	for _, cert := range certs {
		s.Add(cert)
	}
	return s.Len() - before, err
}

// ParseCertificates extracts every BEGIN/END CERTIFICATE block from data.
// A block that fails to decode is skipped; its error is joined into the
// returned error while the other blocks are still returned. Data with no
// blocks yields no certificates and no error.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var (
		certs []*x509.Certificate
		errs  []error
	)
	for i, match := range pemCertificateBlock.FindAllSubmatch(data, -1) {
		der, err := base64.StdEncoding.DecodeString(stripWhitespace(string(match[1])))
		if err != nil {
			errs = append(errs, fmt.Errorf("certificate block %d: %w", i+1, err))
			continue
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			errs = append(errs, fmt.Errorf("certificate block %d: %w", i+1, err))
			continue
		}
		certs = append(certs, cert)
	}
	return certs, errors.Join(errs...)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
