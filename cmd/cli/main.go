// Command cv is a CLI client for the CertVault service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/and161185/certvault/api/certvault/v1"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "certvault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "certvault")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func clearToken() error {
	if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

// globals are the connection flags shared by all commands.
type globals struct {
	addr      string
	caPath    string
	insecure  bool // TLS without verification
	plaintext bool // no TLS at all
}

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, g globals, bearer string) (*grpc.ClientConn, *pb.Client, error) {
	var creds credentials.TransportCredentials
	if g.plaintext {
		creds = insecure.NewCredentials()
	} else {
		c, err := loadTLS(g.caPath, g.insecure)
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !g.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, g.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, pb.NewClient(cc), nil
}

// ---- utils ----

func printJSON(w io.Writer, s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(os.Stderr, `cv CLI
Usage:
  cv -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  logout
`)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, "\nSecrets may be passed in CV_SECRET instead of -secret.")
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses global flags and dispatches the subcommand.
func main() {
	var g globals
	flag.StringVar(&g.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "connect without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, g, flag.Args(), os.Stdout); err != nil {
		fail(err)
	}
}

// run executes one subcommand and prints the response to out.
func run(ctx context.Context, g globals, args []string, out io.Writer) error {
	name, rest := args[0], args[1:]
	switch name {
	case "version":
		_, err := fmt.Fprintf(out, "cv %s (%s)\n", version, buildDate)
		return err
	case "logout":
		return clearToken()
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	c, err := cmd.build(name, rest)
	if err != nil {
		return err
	}

	var token string
	switch cmd.auth {
	case authRequired:
		if token, err = loadToken(); err != nil {
			return err
		}
	case authOptional:
		token, _ = loadToken()
	}

	cc, cli, err := dial(ctx, g, token)
	if err != nil {
		return err
	}
	defer cc.Close()

	resp, err := cli.CallMap(ctx, c.method, c.in)
	if err != nil {
		return err
	}
	if cmd.after != nil {
		if err := cmd.after(resp); err != nil {
			return err
		}
	}
	return printJSON(out, resp)
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		reason := pb.ErrorReason(err)
		if reason == "" {
			reason = s.Code().String()
		}
		fmt.Fprintf(os.Stderr, "error: %s (%s)\n", s.Message(), reason)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
