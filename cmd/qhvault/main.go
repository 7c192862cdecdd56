package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"quantumharmony.io/vault/address"
	"quantumharmony.io/vault/keygen"
	"quantumharmony.io/vault/vault"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "create":
		return cmdCreate(args[1:], out, errOut)
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "export":
		return cmdExport(args[1:], out, errOut)
	case "list":
		return cmdList(args[1:], out, errOut)
	case "select":
		return cmdSelect(args[1:], out, errOut)
	case "delete":
		return cmdDelete(args[1:], out, errOut)
	case "unlock":
		return cmdUnlock(args[1:], out, errOut)
	case "address":
		return cmdAddress(args[1:], out, errOut)
	case "ping":
		return cmdPing(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "qhvault: encrypted keystore vault for post-quantum signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  qhvault create [--name <label>] [--endpoint <url>] [--fallback-crypto]")
	fmt.Fprintln(w, "  qhvault import <file>")
	fmt.Fprintln(w, "  qhvault export --id <uuid> [--out <file>]")
	fmt.Fprintln(w, "  qhvault list")
	fmt.Fprintln(w, "  qhvault select --id <uuid>")
	fmt.Fprintln(w, "  qhvault delete --id <uuid>")
	fmt.Fprintln(w, "  qhvault unlock [--id <uuid>]")
	fmt.Fprintln(w, "  qhvault address <ss58-address>")
	fmt.Fprintln(w, "  qhvault ping [--endpoint <url>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags (every vault command):")
	fmt.Fprintln(w, "  --store <path>    collection location (default ~/.quantumharmony/keystores.json)")
	fmt.Fprintln(w, "  --backend <name>  store backend: file or bolt")
	fmt.Fprintln(w, "  --prefix <n>      SS58 network prefix for new records (default 42)")
	fmt.Fprintln(w, "  --verbose         structured diagnostics on stderr")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - passwords are prompted on the terminal and never taken from flags")
	fmt.Fprintln(w, "  - unlock verifies the password and prints the address; it never prints key material")
	fmt.Fprintln(w, "  - when no generation service is reachable, import a pre-generated key file")
}

// vaultFlags carries the flags shared by every command that opens the vault.
type vaultFlags struct {
	cfg     vault.Config
	prefix  *uint
	verbose *bool
}

func addVaultFlags(fs *flag.FlagSet) *vaultFlags {
	vf := &vaultFlags{cfg: vault.DefaultConfig()}
	fs.StringVar(&vf.cfg.StorePath, "store", vf.cfg.StorePath, "Collection location")
	fs.StringVar(&vf.cfg.Backend, "backend", vf.cfg.Backend, "Store backend: file or bolt")
	fs.IntVar(&vf.cfg.Iterations, "iterations", vf.cfg.Iterations, "KDF iteration count for new records")
	vf.prefix = fs.Uint("prefix", uint(vf.cfg.NetworkPrefix), "SS58 network prefix for new records")
	vf.verbose = fs.Bool("verbose", false, "Structured diagnostics on stderr")
	return vf
}

// open finalizes the parsed flags into a ready vault.
func (vf *vaultFlags) open(errOut io.Writer) (*vault.Vault, error) {
	if *vf.prefix > 255 {
		return nil, fmt.Errorf("invalid --prefix %d: must fit in a byte", *vf.prefix)
	}
	vf.cfg.NetworkPrefix = byte(*vf.prefix)
	if *vf.verbose {
		vf.cfg.Logger = zerolog.New(zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return vault.Open(vf.cfg)
}

func cmdCreate(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	var name string
	var endpoint string
	fs.StringVar(&name, "name", "", "Human-readable label for the record")
	fs.StringVar(&endpoint, "endpoint", "", "Preferred key-generation endpoint (tried before the defaults)")
	fs.BoolVar(&vf.cfg.UseFallbackCrypto, "fallback-crypto", false, "Create the record with the degraded kdf/cipher (weakens protection)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if endpoint != "" {
		vf.cfg.Endpoints = append([]string{endpoint}, keygen.DefaultEndpoints...)
	}

	password, err := promptNewPassword(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "password: %v\n", err)
		return 2
	}

	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	rec, err := v.Create(context.Background(), password, name)
	if err != nil {
		fmt.Fprintf(errOut, "create: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created keystore %s\n", rec.ID)
	fmt.Fprintf(out, "Address: %s\n", rec.Address)
	return 0
}

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: qhvault import <file>")
		return 2
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", fs.Arg(0), err)
		return 1
	}

	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	rec, err := v.Import(data)
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Imported keystore %s\n", rec.ID)
	fmt.Fprintf(out, "Address: %s\n", rec.Address)
	return 0
}

func cmdExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	var id string
	var outPath string
	fs.StringVar(&id, "id", "", "Record id to export")
	fs.StringVar(&outPath, "out", "", "Write to file instead of stdout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}

	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	doc, err := v.Export(id)
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(doc)
		return 0
	}
	if err := os.WriteFile(outPath, doc, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	fmt.Fprintf(out, "Exported keystore %s to %s\n", id, outPath)
	return 0
}

func cmdList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	recs, err := v.List()
	if err != nil {
		fmt.Fprintf(errOut, "list: %v\n", err)
		return 1
	}
	activeID := ""
	if active, aerr := v.Active(); aerr == nil {
		activeID = active.ID
	}
	for _, r := range recs {
		marker := " "
		if r.ID == activeID {
			marker = "*"
		}
		name := r.Meta.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(out, "%s %s  %s  %s  %s\n", marker, r.ID, r.Address, name, r.Meta.Created)
	}
	return 0
}

func cmdSelect(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	var id string
	fs.StringVar(&id, "id", "", "Record id to make active")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}
	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	if err := v.Select(id); err != nil {
		fmt.Fprintf(errOut, "select: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Active keystore is now %s\n", id)
	return 0
}

func cmdDelete(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	var id string
	fs.StringVar(&id, "id", "", "Record id to delete")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if id == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}
	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	if err := v.Delete(id); err != nil {
		fmt.Fprintf(errOut, "delete: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Deleted keystore %s\n", id)
	return 0
}

func cmdUnlock(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	fs.SetOutput(errOut)
	vf := addVaultFlags(fs)

	var id string
	fs.StringVar(&id, "id", "", "Record id (defaults to the active record)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	password, err := promptPassword(errOut, "Password: ")
	if err != nil {
		fmt.Fprintf(errOut, "password: %v\n", err)
		return 2
	}

	v, err := vf.open(errOut)
	if err != nil {
		fmt.Fprintf(errOut, "open vault: %v\n", err)
		return 1
	}
	defer v.Close()

	if id == "" {
		active, aerr := v.Active()
		if aerr != nil {
			fmt.Fprintf(errOut, "unlock: %v\n", aerr)
			return 1
		}
		id = active.ID
	}

	rec, err := v.Get(id)
	if err != nil {
		fmt.Fprintf(errOut, "unlock: %v\n", err)
		return 1
	}
	kp, err := v.Unlock(id, password)
	if err != nil {
		fmt.Fprintf(errOut, "unlock: %v\n", err)
		return 1
	}
	kp.Zero()

	fmt.Fprintf(out, "Unlocked keystore %s\n", rec.ID)
	fmt.Fprintf(out, "Address: %s\n", rec.Address)
	return 0
}

func cmdAddress(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: qhvault address <ss58-address>")
		return 2
	}
	accountID, prefix, err := address.Decode(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid address: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Prefix:     %d\n", prefix)
	fmt.Fprintf(out, "Account ID: %x\n", accountID[:])
	return 0
}

func cmdPing(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var endpoint string
	fs.StringVar(&endpoint, "endpoint", "http://localhost:8106/health", "Health endpoint to probe")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	gen := keygen.New(keygen.Config{})
	if err := gen.Ping(context.Background(), endpoint); err != nil {
		fmt.Fprintf(errOut, "unreachable: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "%s is healthy\n", endpoint)
	return 0
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read for piped input.
func promptPassword(errOut io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(errOut, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(errOut)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptNewPassword(errOut io.Writer) (string, error) {
	password, err := promptPassword(errOut, "New password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("empty password")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return password, nil
	}
	confirm, err := promptPassword(errOut, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if confirm != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
