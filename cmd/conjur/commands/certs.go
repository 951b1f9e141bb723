package commands

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/conjur-go/internal/config"
	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/pkg/conjur"
)

func NewCertsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Inspect the certificates used to trust Conjur",
	}

	cmd.AddCommand(newCertsCheckCommand(app))

	return cmd
}

func newCertsCheckCommand(app *App) *cobra.Command {
	var (
		serverURL string
		certFile  string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the Conjur server certificate chain is trusted",
		Long: `Connect to the Conjur appliance, print the certificate chain it presents
and report whether the chain is trusted by the system store or by the
certificates in cert_file.

The appliance URL and cert_file come from conjur.yaml unless given as flags.

Examples:
  conjur certs check
  conjur certs check --url https://conjur.example.com --cert-file conjur-ca.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := time.Duration(config.DefaultTimeoutMs) * time.Millisecond
			if serverURL == "" {
				def, err := app.loadDefinition()
				if err != nil {
					return err
				}
				serverURL = def.ApplianceURL
				if certFile == "" {
					certFile = def.CertFile
				}
				timeout = def.Timeout()
			}

			extraRoots := conjur.NewRootSet()
			if certFile != "" {
				n, err := extraRoots.ImportPEM(certFile)
				if n == 0 {
					details := "no BEGIN CERTIFICATE blocks found"
					if err != nil {
						details = err.Error()
					}
					return dserrors.UserError{
						Message:    fmt.Sprintf("No usable certificates in %s", certFile),
						Details:    details,
						Suggestion: "The file must contain at least one BEGIN CERTIFICATE block",
						Err:        err,
					}
				}
				if err != nil {
					app.logger().Warn("Skipped unreadable blocks in %s: %v", certFile, err)
				}
				app.logger().Debug("Loaded %d extra root certificates from %s", n, certFile)
			}

			host, addr, err := dialAddress(serverURL)
			if err != nil {
				return err
			}
			peers, err := fetchPeerCertificates(addr, host, timeout)
			if err != nil {
				return dserrors.ConjurError("certs check", err)
			}

			verifier := app.Verifier
			if verifier == nil {
				verifier = &conjur.ChainVerifier{}
			}
			candidates := append(append([]*x509.Certificate{}, peers[1:]...), extraRoots.Certificates()...)
			report := verifier.BuildChain(peers[0], candidates)
			printChain(cmd.OutOrStdout(), host, report)

			verifyErr := verifier.Verify(peers[0], peers[1:], extraRoots)
			hostErr := peers[0].VerifyHostname(host)
			if err := errors.Join(verifyErr, hostErr); err != nil {
				return dserrors.UserError{
					Message:    fmt.Sprintf("The certificate presented by %s is not trusted", host),
					Details:    err.Error(),
					Suggestion: "Add the issuing CA certificate to cert_file, or check appliance_url matches the certificate",
					Err:        err,
				}
			}

			app.logger().Info("Certificate chain for %s is trusted", host)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "Appliance URL to check (defaults to appliance_url)")
	cmd.Flags().StringVar(&certFile, "cert-file", "", "PEM bundle of extra trusted roots (defaults to cert_file)")

	return cmd
}

// dialAddress returns the host name and host:port to connect to for rawURL.
func dialAddress(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", "", dserrors.ConfigError{
			Field:      "appliance_url",
			Value:      rawURL,
			Message:    "not a valid URL",
			Suggestion: "Use format: https://conjur.example.com",
		}
	}
	if u.Scheme != "https" {
		return "", "", dserrors.ConfigError{
			Field:      "appliance_url",
			Value:      rawURL,
			Message:    "certificates can only be checked for https URLs",
			Suggestion: "Use format: https://conjur.example.com",
		}
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return u.Hostname(), net.JoinHostPort(u.Hostname(), port), nil
}

// fetchPeerCertificates completes a handshake without verification and
// returns the certificates the server sent.
func fetchPeerCertificates(addr, host string, timeout time.Duration) ([]*x509.Certificate, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // the chain is verified below
	})
	if err != nil {
		return nil, &conjur.APIError{Op: "certs check", Kind: conjur.ErrTransport, Err: err}
	}
	defer func() { _ = conn.Close() }()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, &conjur.APIError{Op: "certs check", Kind: conjur.ErrTrust, Message: "server sent no certificates"}
	}
	return peers, nil
}

func printChain(w io.Writer, host string, report conjur.ChainReport) {
	fmt.Fprintf(w, "Certificate chain for %s:\n", host)
	for i, element := range report.Elements {
		status := "ok"
		if len(element.Status) > 0 {
			defects := make([]string, len(element.Status))
			for j, s := range element.Status {
				defects[j] = s.String()
			}
			status = strings.Join(defects, ", ")
		}
		cert := element.Certificate
		fmt.Fprintf(w, "  [%d] %s\n", i, cert.Subject)
		fmt.Fprintf(w, "      issuer:  %s\n", cert.Issuer)
		fmt.Fprintf(w, "      expires: %s\n", cert.NotAfter.UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "      status:  %s\n", status)
	}
}
