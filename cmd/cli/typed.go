package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/convert"
)

type authMode int

const (
	authNone authMode = iota
	authOptional
	authRequired
)

// call is one RPC built from command line arguments.
type call struct {
	method string
	in     map[string]any
}

type command struct {
	usage string
	auth  authMode
	build func(name string, args []string) (call, error)
	after func(resp *structpb.Struct) error
}

var commands = map[string]command{
	"register": {
		usage: "-email <e> -secret <s> -name <n> [-role recipient|issuer|verifier]  (saves token)",
		build: buildAccount(pb.MethodRegister),
		after: storeSession,
	},
	"login": {
		usage: "-email <e> -secret <s>  (saves token)",
		build: buildLogin,
		after: storeSession,
	},
	"whoami": {
		usage: "",
		auth:  authRequired,
		build: func(name string, args []string) (call, error) {
			return call{method: pb.MethodProfile}, parseFlags(flag.NewFlagSet(name, flag.ContinueOnError), args)
		},
	},
	"issue": {
		usage: "-recipient <n> -email <e> -course <c> -grade <g> -issued <date> [-expires <date>] [-renewal] [-meta <json|@file>]",
		auth:  authRequired,
		build: buildIssue,
	},
	"verify": {
		usage: "<hash|reference>",
		auth:  authOptional,
		build: buildVerify,
	},
	"get": {
		usage: "-id <uuid>",
		auth:  authRequired,
		build: buildByID(pb.MethodGetCertificate),
	},
	"revoke": {
		usage: "-id <uuid>",
		auth:  authRequired,
		build: buildByID(pb.MethodRevokeCertificate),
	},
	"list": {
		usage: "-recipient <email> | -issuer <uuid>",
		auth:  authRequired,
		build: buildList,
	},
	"principal-create": {
		usage: "-email <e> -secret <s> -name <n> -role <r>",
		auth:  authRequired,
		build: buildAccount(pb.MethodCreatePrincipal),
	},
	"principal-get": {
		usage: "-id <uuid>",
		auth:  authRequired,
		build: buildByID(pb.MethodGetPrincipal),
	},
	"principals": {
		usage: "-role <r>",
		auth:  authRequired,
		build: buildRole(pb.MethodListPrincipalsByRole, false),
	},
	"principal-update": {
		usage: "-id <uuid> [-email <e>] [-name <n>]",
		auth:  authRequired,
		build: buildUpdate,
	},
	"principal-deactivate": {
		usage: "-id <uuid>",
		auth:  authRequired,
		build: buildByID(pb.MethodDeactivatePrincipal),
	},
	"principal-status": {
		usage: "-id <uuid> -active=true|false",
		auth:  authRequired,
		build: buildStatus,
	},
	"principal-role": {
		usage: "-id <uuid> -role <r>",
		auth:  authRequired,
		build: buildRole(pb.MethodChangePrincipalRole, true),
	},
}

// ------- generic builders -------

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", fs.Name(), err)
	}
	return nil
}

// secretOr falls back to CV_SECRET so secrets stay out of shell history.
func secretOr(v string) string {
	if v != "" {
		return v
	}
	return os.Getenv("CV_SECRET")
}

func needUUID(flagName, v string) (string, error) {
	id, err := u.FromString(strings.TrimSpace(v))
	if err != nil {
		return "", fmt.Errorf("need -%s <uuid>", flagName)
	}
	return id.String(), nil
}

// normDate validates a date locally and renders it as RFC 3339.
func normDate(flagName, v string) (string, error) {
	t, err := convert.ParseTime(v)
	if err != nil {
		return "", fmt.Errorf("-%s: want YYYY-MM-DD or RFC 3339, got %q", flagName, v)
	}
	return t.Format(time.RFC3339), nil
}

// readMeta accepts inline JSON or @path to a JSON file.
func readMeta(v string) (map[string]any, error) {
	raw := []byte(v)
	if strings.HasPrefix(v, "@") {
		b, err := os.ReadFile(v[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("-meta must be a JSON object: %w", err)
	}
	return m, nil
}

// ------- command builders -------

func buildAccount(method string) func(string, []string) (call, error) {
	return func(name string, args []string) (call, error) {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		email := fs.String("email", "", "email")
		secret := fs.String("secret", "", "secret")
		display := fs.String("name", "", "display name")
		role := fs.String("role", "", "role")
		if err := parseFlags(fs, args); err != nil {
			return call{}, err
		}
		s := secretOr(*secret)
		if *email == "" || s == "" || *display == "" {
			return call{}, errors.New("need -email, -secret and -name")
		}
		if method == pb.MethodCreatePrincipal && *role == "" {
			return call{}, errors.New("need -role")
		}
		in := map[string]any{"email": *email, "secret": s, "name": *display}
		if *role != "" {
			in["role"] = *role
		}
		return call{method: method, in: in}, nil
	}
}

func buildLogin(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	email := fs.String("email", "", "email")
	secret := fs.String("secret", "", "secret")
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	s := secretOr(*secret)
	if *email == "" || s == "" {
		return call{}, errors.New("need -email and -secret")
	}
	return call{method: pb.MethodLogin, in: map[string]any{"email": *email, "secret": s}}, nil
}

func buildIssue(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	recipient := fs.String("recipient", "", "recipient name")
	email := fs.String("email", "", "recipient email")
	course := fs.String("course", "", "course")
	grade := fs.String("grade", "", "grade")
	issued := fs.String("issued", "", "issue date")
	expires := fs.String("expires", "", "expiration date")
	renewal := fs.Bool("renewal", false, "requires renewal")
	meta := fs.String("meta", "", "metadata JSON or @file")
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	if *recipient == "" || *email == "" || *course == "" || *grade == "" || *issued == "" {
		return call{}, errors.New("need -recipient, -email, -course, -grade and -issued")
	}
	issueDate, err := normDate("issued", *issued)
	if err != nil {
		return call{}, err
	}
	in := map[string]any{
		"recipient":       *recipient,
		"recipientEmail":  *email,
		"course":          *course,
		"grade":           *grade,
		"issueDate":       issueDate,
		"requiresRenewal": *renewal,
	}
	if *expires != "" {
		if in["expirationDate"], err = normDate("expires", *expires); err != nil {
			return call{}, err
		}
	}
	if *meta != "" {
		m, err := readMeta(*meta)
		if err != nil {
			return call{}, err
		}
		in["metadata"] = m
	}
	return call{method: pb.MethodIssueCertificate, in: in}, nil
}

func buildVerify(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		return call{}, errors.New("need exactly one identifier (hash or reference id)")
	}
	return call{method: pb.MethodVerifyCertificate, in: map[string]any{"identifier": strings.TrimSpace(fs.Arg(0))}}, nil
}

func buildByID(method string) func(string, []string) (call, error) {
	return func(name string, args []string) (call, error) {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		id := fs.String("id", "", "id")
		if err := parseFlags(fs, args); err != nil {
			return call{}, err
		}
		v, err := needUUID("id", *id)
		if err != nil {
			return call{}, err
		}
		return call{method: method, in: map[string]any{"id": v}}, nil
	}
}

func buildList(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	recipient := fs.String("recipient", "", "recipient email")
	issuer := fs.String("issuer", "", "issuer id")
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	switch {
	case *recipient != "" && *issuer != "":
		return call{}, errors.New("use either -recipient or -issuer")
	case *recipient != "":
		return call{method: pb.MethodListCertificatesByRecipient, in: map[string]any{"email": *recipient}}, nil
	case *issuer != "":
		v, err := needUUID("issuer", *issuer)
		if err != nil {
			return call{}, err
		}
		return call{method: pb.MethodListCertificatesByIssuer, in: map[string]any{"issuerId": v}}, nil
	}
	return call{}, errors.New("need -recipient or -issuer")
}

func buildRole(method string, withID bool) func(string, []string) (call, error) {
	return func(name string, args []string) (call, error) {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		id := fs.String("id", "", "principal id")
		role := fs.String("role", "", "role")
		if err := parseFlags(fs, args); err != nil {
			return call{}, err
		}
		if *role == "" {
			return call{}, errors.New("need -role")
		}
		in := map[string]any{"role": *role}
		if withID {
			v, err := needUUID("id", *id)
			if err != nil {
				return call{}, err
			}
			in["id"] = v
		}
		return call{method: method, in: in}, nil
	}
}

func buildUpdate(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "principal id")
	fs.String("email", "", "new email")
	fs.String("name", "", "new display name")
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	v, err := needUUID("id", *id)
	if err != nil {
		return call{}, err
	}
	in := map[string]any{"id": v}
	// only flags given on the command line are sent
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "id" {
			in[f.Name] = f.Value.String()
		}
	})
	if len(in) == 1 {
		return call{}, errors.New("need -email and/or -name")
	}
	return call{method: pb.MethodUpdatePrincipal, in: in}, nil
}

func buildStatus(name string, args []string) (call, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "principal id")
	active := fs.Bool("active", true, "active")
	if err := parseFlags(fs, args); err != nil {
		return call{}, err
	}
	v, err := needUUID("id", *id)
	if err != nil {
		return call{}, err
	}
	return call{method: pb.MethodSetPrincipalStatus, in: map[string]any{"id": v, "active": *active}}, nil
}

// storeSession saves the access token from a register/login response.
func storeSession(resp *structpb.Struct) error {
	f := resp.GetFields()
	tok := f["accessToken"].GetStringValue()
	if tok == "" {
		return errors.New("response carries no access token")
	}
	exp, err := time.Parse(time.RFC3339Nano, f["expiresAt"].GetStringValue())
	if err != nil {
		exp = time.Now().Add(15 * time.Minute)
	}
	return saveToken(tok, exp)
}
